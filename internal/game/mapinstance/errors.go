package mapinstance

import "errors"

// Sentinel errors for the live map instance layer.
var (
	ErrMapNotFound        = errors.New("map not found")
	ErrMapNotInstanceable = errors.New("map is not instanceable")
	ErrInvalidDifficulty  = errors.New("invalid difficulty")
	ErrInstanceNotFound   = errors.New("map instance not found")
	ErrInstanceDestroyed  = errors.New("map instance is destroyed")
	ErrAlreadyInside      = errors.New("player already inside an instance")
	ErrNotInside          = errors.New("player not inside any instance")
)

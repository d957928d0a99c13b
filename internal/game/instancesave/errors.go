package instancesave

import "errors"

// Sentinel errors for the instance save system.
var (
	ErrInvalidInstanceID  = errors.New("invalid instance id")
	ErrSaveNotFound       = errors.New("instance save not found")
	ErrMapNotFound        = errors.New("map not found")
	ErrMapNotInstanceable = errors.New("map is not instanceable")
	ErrInvalidDifficulty  = errors.New("invalid difficulty")
)

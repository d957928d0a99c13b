package model

import "testing"

func TestDifficultyValid(t *testing.T) {
	if !DifficultyNormal.Valid() {
		t.Error("DifficultyNormal should be valid")
	}
	if !DifficultyHeroic.Valid() {
		t.Error("DifficultyHeroic should be valid")
	}
	if Difficulty(2).Valid() {
		t.Error("Difficulty(2) should not be valid")
	}
	if Difficulty(-1).Valid() {
		t.Error("Difficulty(-1) should not be valid")
	}
}

func TestDifficultyString(t *testing.T) {
	if got := DifficultyNormal.String(); got != "normal" {
		t.Errorf("DifficultyNormal.String() = %q; want %q", got, "normal")
	}
	if got := DifficultyHeroic.String(); got != "heroic" {
		t.Errorf("DifficultyHeroic.String() = %q; want %q", got, "heroic")
	}
	if got := Difficulty(7).String(); got != "unknown" {
		t.Errorf("Difficulty(7).String() = %q; want %q", got, "unknown")
	}
}

package config

import "testing"

func TestLoadSyncSettings(t *testing.T) {
	s := LoadSyncSettings()

	if s.Users.Resource != "sys_user" || s.Companies.Resource != "core_company" {
		t.Error("Unexpected entity resources")
	}
	// Companies are read from core_company but stored as sys_company
	if s.Companies.Table != "sys_company" {
		t.Errorf("Expected companies stored in sys_company, got %s", s.Companies.Table)
	}
	if s.Companies.SafetyMargin <= s.Users.SafetyMargin {
		t.Error("Company watermarks need the wider safety margin")
	}
	if s.BatchSize <= 0 {
		t.Error("Batch size must be positive")
	}
}

func TestByName(t *testing.T) {
	s := LoadSyncSettings()

	ent, err := s.ByName("users")
	if err != nil || ent.Table != "sys_user" {
		t.Errorf("Expected users settings, got %+v (%v)", ent, err)
	}

	if _, err := s.ByName("widgets"); err == nil {
		t.Error("Expected an error for an unknown entity type")
	}
}

package domain

import (
	"errors"
	"testing"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	if s.Days != 30 {
		t.Errorf("Days = %d, want 30", s.Days)
	}
	if s.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", s.MaxAttempts)
	}
	if s.CooldownMinutes != 10 {
		t.Errorf("CooldownMinutes = %d, want 10", s.CooldownMinutes)
	}
	if s.MaxPuzzles != 0 {
		t.Errorf("MaxPuzzles = %d, want 0 (unlimited)", s.MaxPuzzles)
	}
	if !s.UseSpacedRepetition {
		t.Error("UseSpacedRepetition should default to true")
	}
	if len(s.PerfTypes) != 2 || s.PerfTypes[0] != TimeControlBlitz || s.PerfTypes[1] != TimeControlRapid {
		t.Errorf("PerfTypes = %v, want [Blitz Rapid]", s.PerfTypes)
	}
	if len(s.Tags) != 3 {
		t.Errorf("Tags = %v, want [Blunder Mistake Inaccuracy]", s.Tags)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("default settings should validate, got %v", err)
	}
}

func TestSettings_Validate(t *testing.T) {
	valid := DefaultSettings()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults", func(s *Settings) {}, false},
		{"max attempts low", func(s *Settings) { s.MaxAttempts = 0 }, true},
		{"max attempts high", func(s *Settings) { s.MaxAttempts = 4 }, true},
		{"max attempts one", func(s *Settings) { s.MaxAttempts = 1 }, false},
		{"negative days", func(s *Settings) { s.Days = -1 }, true},
		{"zero days is unlimited", func(s *Settings) { s.Days = 0 }, false},
		{"negative max puzzles", func(s *Settings) { s.MaxPuzzles = -5 }, true},
		{"negative cooldown", func(s *Settings) { s.CooldownMinutes = -1 }, true},
		{"unknown perf type", func(s *Settings) { s.PerfTypes = []TimeControlType{"hyperbullet"} }, true},
		{"unknown tag", func(s *Settings) { s.Tags = []Severity{"Dubious"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			s.PerfTypes = append([]TimeControlType(nil), valid.PerfTypes...)
			s.Tags = append([]Severity(nil), valid.Tags...)
			tt.mutate(&s)

			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Validate() error should wrap ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestParseTimeControlType(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeControlType
		wantErr bool
	}{
		{"blitz", TimeControlBlitz, false},
		{"Blitz", TimeControlBlitz, false},
		{"RAPID", TimeControlRapid, false},
		{"bullet", TimeControlBullet, false},
		{"classical", TimeControlClassical, false},
		{"standard", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTimeControlType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeControlType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeControlType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"blunder", SeverityBlunder, false},
		{"Mistake", SeverityMistake, false},
		{"INACCURACY", SeverityInaccuracy, false},
		{"error", SeverityError, false},
		{"brilliant", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSeverity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSeverity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewUser(t *testing.T) {
	u := NewUser("magnus")

	if u.Username != "magnus" {
		t.Errorf("Username = %q, want magnus", u.Username)
	}
	if u.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("NewUser should assign a random ID")
	}
	if u.ImportStatus != ImportStatusIdle {
		t.Errorf("ImportStatus = %q, want idle", u.ImportStatus)
	}
	if u.XP != 0 || u.ConsecutiveCorrect != 0 || u.StreakDays != 0 {
		t.Error("new user should start with zeroed progress counters")
	}
	if u.Settings.MaxAttempts != 3 {
		t.Errorf("new user MaxAttempts = %d, want default 3", u.Settings.MaxAttempts)
	}
}

package domain

import (
	"testing"
	"time"
)

func TestClassifyTimeControl(t *testing.T) {
	tests := []struct {
		name string
		tc   string
		want TimeControlType
	}{
		{"bullet", "60+0", TimeControlBullet},
		{"bullet upper bound", "179+2", TimeControlBullet},
		{"blitz lower bound", "180+0", TimeControlBlitz},
		{"blitz", "300+3", TimeControlBlitz},
		{"blitz upper bound", "599+0", TimeControlBlitz},
		{"rapid lower bound", "600+5", TimeControlRapid},
		{"rapid upper bound", "1799+0", TimeControlRapid},
		{"classical", "1800+30", TimeControlClassical},
		{"classical long", "7200+60", TimeControlClassical},
		{"no increment separator", "300", ""},
		{"empty", "", ""},
		{"correspondence", "-", ""},
		{"non-numeric base", "abc+5", ""},
		{"base with spaces", " 300 +3", TimeControlBlitz},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTimeControl(tt.tc); got != tt.want {
				t.Errorf("ClassifyTimeControl(%q) = %q, want %q", tt.tc, got, tt.want)
			}
		})
	}
}

func TestPuzzle_IsDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name       string
		nextReview *time.Time
		want       bool
	}{
		{"never reviewed", nil, true},
		{"review in the past", &past, true},
		{"review right now", &now, true},
		{"review in the future", &future, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Puzzle{NextReview: tt.nextReview}
			if got := p.IsDue(now); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPuzzle_OnCooldown(t *testing.T) {
	now := time.Now()
	justNow := now.Add(-time.Minute)
	longAgo := now.Add(-time.Hour)

	tests := []struct {
		name         string
		lastReviewed *time.Time
		cooldown     time.Duration
		want         bool
	}{
		{"never reviewed", nil, 10 * time.Minute, false},
		{"reviewed a minute ago", &justNow, 10 * time.Minute, true},
		{"reviewed an hour ago", &longAgo, 10 * time.Minute, false},
		{"cooldown disabled", &justNow, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Puzzle{LastReviewed: tt.lastReviewed}
			if got := p.OnCooldown(now, tt.cooldown); got != tt.want {
				t.Errorf("OnCooldown() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPuzzle_Swing(t *testing.T) {
	tests := []struct {
		name     string
		pre      float64
		post     float64
		want     float64
	}{
		{"losing swing", 0.3, -2.1, 2.4},
		{"gaining swing", -1.0, 1.0, 2.0},
		{"no swing", 0.5, 0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Puzzle{PreEval: tt.pre, PostEval: tt.post}
			if got := p.Swing(); got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("Swing() = %v, want %v", got, tt.want)
			}
		})
	}
}

package progress

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/hone/internal/domain"
)

//go:embed badges.yaml
var catalogYAML []byte

// Tier is one badge definition in the catalog.
type Tier struct {
	Threshold   int    `yaml:"threshold"`
	Name        string `yaml:"name"`
	Icon        string `yaml:"icon"`
	Description string `yaml:"description"`
}

// Catalog holds every badge definition, loaded once at startup and read-only
// afterwards.
type Catalog struct {
	Correct   []Tier `yaml:"correct"`
	Streak    []Tier `yaml:"streak"`
	DayStreak []Tier `yaml:"day_streak"`
	XP        []Tier `yaml:"xp"`
	// XPDynamicStep generates badges at every further multiple beyond the
	// last fixed XP tier.
	XPDynamicStep int `yaml:"xp_dynamic_step"`
}

// LoadCatalog parses the embedded badge catalog.
func LoadCatalog() (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(catalogYAML, &c); err != nil {
		return nil, fmt.Errorf("parse badge catalog: %w", err)
	}
	if len(c.Correct) == 0 || len(c.Streak) == 0 || len(c.DayStreak) == 0 || len(c.XP) == 0 {
		return nil, fmt.Errorf("badge catalog is missing a tier group")
	}
	for _, group := range [][]Tier{c.Correct, c.Streak, c.DayStreak, c.XP} {
		for _, tier := range group {
			if tier.Name == "" || tier.Threshold < 1 {
				return nil, fmt.Errorf("badge catalog entry %+v is malformed", tier)
			}
		}
	}
	return &c, nil
}

// NewlyEarned compares the user's counters against the catalog and returns
// badges whose threshold is now reached and which the user does not hold
// yet. Counters must already reflect the answer being processed.
func (c *Catalog) NewlyEarned(u *domain.User, held map[string]bool, now time.Time) []*domain.Badge {
	var earned []*domain.Badge
	award := func(name, icon, description string) {
		if held[name] {
			return
		}
		earned = append(earned, domain.NewBadge(u.ID, name, icon, description, now))
	}

	for _, t := range c.Correct {
		if u.CorrectCount >= t.Threshold {
			award(t.Name, t.Icon, t.Description)
		}
	}
	for _, t := range c.Streak {
		if u.ConsecutiveCorrect >= t.Threshold {
			award(t.Name, t.Icon, t.Description)
		}
	}
	for _, t := range c.DayStreak {
		if u.StreakDays >= t.Threshold {
			award(t.Name, t.Icon, t.Description)
		}
	}
	for _, t := range c.XP {
		if u.XP >= t.Threshold {
			award(t.Name, t.Icon, t.Description)
		}
	}

	if c.XPDynamicStep > 0 {
		for m := c.XPDynamicStep * 2; m <= u.XP; m += c.XPDynamicStep {
			award(fmt.Sprintf("%d XP", m), "default.svg", fmt.Sprintf("Earned %d XP in total.", m))
		}
	}
	return earned
}

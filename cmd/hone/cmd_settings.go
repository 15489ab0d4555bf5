package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/hone/internal/domain"
)

// cmdSettings shows the current settings or applies key/value updates
func cmdSettings(args []string) error {
	ctx := context.Background()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.cleanup()

	if len(args) == 0 {
		printSettings(app.user.Settings)
		return nil
	}
	if len(args)%2 != 0 {
		return fmt.Errorf("usage: hone settings [key value]...")
	}

	settings := app.user.Settings
	for i := 0; i < len(args); i += 2 {
		if err := applySetting(&settings, args[i], args[i+1]); err != nil {
			return err
		}
	}

	updated, err := app.svc.UpdateSettings(ctx, app.user.ID, settings)
	if err != nil {
		return err
	}

	fmt.Println("Settings updated.")
	fmt.Println()
	printSettings(updated.Settings)
	return nil
}

func printSettings(s domain.Settings) {
	fmt.Println("Settings")
	fmt.Println("========")
	fmt.Printf("days:             %s\n", orUnlimited(s.Days))
	fmt.Printf("perf_types:       %s\n", joinList(s.PerfTypes))
	fmt.Printf("tags:             %s\n", joinList(s.Tags))
	fmt.Printf("max_puzzles:      %s\n", orUnlimited(s.MaxPuzzles))
	fmt.Printf("max_attempts:     %d\n", s.MaxAttempts)
	fmt.Printf("cooldown_minutes: %d\n", s.CooldownMinutes)
	fmt.Printf("spaced:           %t\n", s.UseSpacedRepetition)
}

func applySetting(s *domain.Settings, key, value string) error {
	switch key {
	case "days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("days must be a number, got %q", value)
		}
		s.Days = n
	case "perf_types":
		s.PerfTypes = nil
		for _, part := range splitList(value) {
			pt, err := domain.ParseTimeControlType(part)
			if err != nil {
				return err
			}
			s.PerfTypes = append(s.PerfTypes, pt)
		}
	case "tags":
		s.Tags = nil
		for _, part := range splitList(value) {
			tag, err := domain.ParseSeverity(part)
			if err != nil {
				return err
			}
			s.Tags = append(s.Tags, tag)
		}
	case "max_puzzles":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_puzzles must be a number, got %q", value)
		}
		s.MaxPuzzles = n
	case "max_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_attempts must be a number, got %q", value)
		}
		s.MaxAttempts = n
	case "cooldown_minutes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("cooldown_minutes must be a number, got %q", value)
		}
		s.CooldownMinutes = n
	case "spaced":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("spaced must be true or false, got %q", value)
		}
		s.UseSpacedRepetition = b
	default:
		return fmt.Errorf("unknown setting %q (valid: days, perf_types, tags, max_puzzles, max_attempts, cooldown_minutes, spaced)", key)
	}
	return nil
}

func splitList(value string) []string {
	var parts []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func joinList[S ~string](items []S) string {
	if len(items) == 0 {
		return "(all)"
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = string(item)
	}
	return strings.Join(parts, ", ")
}

func orUnlimited(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

package deskapp

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const clockLayout = "15:04"

// Profile holds the desk defaults applied when a roster is loaded.
type Profile struct {
	IdentifierColumn int    `yaml:"identifier_column"`
	CardColumn       int    `yaml:"card_column"`
	Overwrite        bool   `yaml:"overwrite"`
	Deadline         string `yaml:"deadline"`
	Total            int    `yaml:"total"`
}

func DefaultProfile() Profile {
	return Profile{
		IdentifierColumn: 3,
		CardColumn:       5,
	}
}

// LoadProfile reads a YAML profile. An empty path or a missing file yields
// the defaults. ${VAR} placeholders are expanded from the environment.
func LoadProfile(path string) (Profile, error) {
	profile := DefaultProfile()
	if strings.TrimSpace(path) == "" {
		return profile, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return profile, nil
		}
		return profile, fmt.Errorf("read profile: %w", err)
	}
	content := os.Expand(string(data), os.Getenv)
	if err := yaml.Unmarshal([]byte(content), &profile); err != nil {
		return profile, fmt.Errorf("parse profile: %w", err)
	}
	if err := profile.validate(); err != nil {
		return profile, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return profile, nil
}

func WriteProfile(path string, profile Profile) error {
	data, err := yaml.Marshal(profile)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (p Profile) validate() error {
	if p.IdentifierColumn < 0 || p.CardColumn < 0 {
		return errors.New("columns must not be negative")
	}
	if p.Total < 0 {
		return errors.New("total must not be negative")
	}
	if p.Deadline != "" {
		if _, err := parseClock(p.Deadline); err != nil {
			return err
		}
	}
	return nil
}

func parseClock(value string) (time.Time, error) {
	clock, err := time.Parse(clockLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q: want HH:MM", value)
	}
	return clock, nil
}

// deadlineOn combines the date of day with the HH:MM clock.
func deadlineOn(day time.Time, clock string) (time.Time, error) {
	parsed, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}

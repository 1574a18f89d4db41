package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Settings keys holding the live policy.
const (
	SettingTolerance    = "match_tolerance"
	SettingGraceMinutes = "grace_minutes"
	SettingLateCutoff   = "late_cutoff"
)

// Policy holds the tunables read on every decision.
type Policy struct {
	Tolerance    float64 `json:"tolerance"`
	GraceMinutes int     `json:"grace_minutes"`
	LateCutoff   Clock   `json:"late_cutoff"`
}

// Grace returns the grace period as a duration.
func (p Policy) Grace() time.Duration {
	return time.Duration(p.GraceMinutes) * time.Minute
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %v", p.Tolerance)
	}
	if p.GraceMinutes < 0 {
		return fmt.Errorf("grace minutes must not be negative, got %d", p.GraceMinutes)
	}
	if p.LateCutoff.Hour < 0 || p.LateCutoff.Hour > 23 || p.LateCutoff.Minute < 0 || p.LateCutoff.Minute > 59 {
		return fmt.Errorf("invalid late cutoff %s", p.LateCutoff)
	}
	return nil
}

// PolicySource supplies the current policy.
type PolicySource interface {
	Policy(ctx context.Context) (Policy, error)
}

// StaticPolicy is a PolicySource that never changes.
type StaticPolicy Policy

func (p StaticPolicy) Policy(context.Context) (Policy, error) {
	return Policy(p), nil
}

// SettingsStore persists key/value settings.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error
}

// StoredPolicy reads the policy from the settings store on every call so edits
// apply to the next decision. Missing or malformed values fall back to defaults.
type StoredPolicy struct {
	store    SettingsStore
	defaults Policy
}

// NewStoredPolicy creates a policy source backed by settings.
func NewStoredPolicy(store SettingsStore, defaults Policy) *StoredPolicy {
	return &StoredPolicy{store: store, defaults: defaults}
}

// Defaults returns the fallback policy.
func (s *StoredPolicy) Defaults() Policy {
	return s.defaults
}

func (s *StoredPolicy) Policy(ctx context.Context) (Policy, error) {
	values, err := s.store.LoadSettings(ctx)
	if err != nil {
		return s.defaults, fmt.Errorf("load policy settings: %w", err)
	}

	p := s.defaults
	if v, ok := values[SettingTolerance]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			p.Tolerance = f
		} else {
			slog.Warn("ignoring invalid policy setting", "key", SettingTolerance, "value", v)
		}
	}
	if v, ok := values[SettingGraceMinutes]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.GraceMinutes = n
		} else {
			slog.Warn("ignoring invalid policy setting", "key", SettingGraceMinutes, "value", v)
		}
	}
	if v, ok := values[SettingLateCutoff]; ok {
		if c, err := ParseClock(v); err == nil {
			p.LateCutoff = c
		} else {
			slog.Warn("ignoring invalid policy setting", "key", SettingLateCutoff, "value", v)
		}
	}
	return p, nil
}

// Update validates and stores a new policy.
func (s *StoredPolicy) Update(ctx context.Context, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.store.SaveSettings(ctx, map[string]string{
		SettingTolerance:    strconv.FormatFloat(p.Tolerance, 'f', -1, 64),
		SettingGraceMinutes: strconv.Itoa(p.GraceMinutes),
		SettingLateCutoff:   p.LateCutoff.String(),
	})
}

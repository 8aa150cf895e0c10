package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Durations is every duration setting parsed, with defaults for the empty
// ones.
type Durations struct {
	LaunchGrace  time.Duration
	BusyTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const (
	DefaultLaunchGrace = 300 * time.Millisecond
	DefaultBusyTimeout = 5 * time.Second
)

// Durations parses the duration fields and reports every bad one at once.
func (c *Config) Durations() (Durations, error) {
	var errs []error
	field := func(path, raw string, def time.Duration) time.Duration {
		d, err := parseDuration(path, raw)
		if err != nil {
			errs = append(errs, err)
		}
		if d <= 0 {
			return def
		}
		return d
	}
	d := Durations{
		LaunchGrace:  field("launch.grace", c.Launch.Grace, DefaultLaunchGrace),
		BusyTimeout:  field("storage.busy_timeout", c.Storage.BusyTimeout, DefaultBusyTimeout),
		ReadTimeout:  field("http.read_timeout", c.HTTP.ReadTimeout, 15*time.Second),
		WriteTimeout: field("http.write_timeout", c.HTTP.WriteTimeout, 15*time.Second),
		IdleTimeout:  field("http.idle_timeout", c.HTTP.IdleTimeout, 60*time.Second),
	}
	if err := errors.Join(errs...); err != nil {
		return Durations{}, err
	}
	return d, nil
}

// parseDuration accepts Go duration strings; empty means zero.
func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", path)
	}
	return d, nil
}

package registrar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidSchedule = errors.New("registrar: invalid schedule")

// cronParser accepts what crontab(5) accepts: five fields or a descriptor.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks that expr is a schedule cron can install.
func Validate(expr string) error {
	_, err := parseSchedule(expr)
	return err
}

func parseSchedule(expr string) (cron.Schedule, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSchedule)
	}
	if strings.HasPrefix(s, "@every") {
		return nil, fmt.Errorf("%w: %q is not a crontab schedule", ErrInvalidSchedule, s)
	}
	sched, err := cronParser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, s, err)
	}
	return sched, nil
}

// Next returns the first fire time of expr strictly after now.
func Next(expr string, now time.Time) (time.Time, error) {
	sched, err := parseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now), nil
}

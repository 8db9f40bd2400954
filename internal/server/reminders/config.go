// Package reminders decides when expiry reminders fire. It covers two
// cadences: the document cadence (offsets before expiry, the expiry day,
// then a fixed post-expiry interval) and the ten-step file cadence.
//
// Everything here is pure; the caller supplies the run date and the Config.
package reminders

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const DefaultTimezone = "America/New_York"

// Config is the reminder cadence. It is always passed by value and never
// read from process-wide state.
type Config struct {
	// Offsets are days before expiry on which a PRE reminder fires.
	Offsets []int
	// PostExpiryIntervalDays is the minimum gap between POST reminders.
	PostExpiryIntervalDays int
	// SendHourLocal is the only local hour at which cron runs send.
	SendHourLocal int
	// Location defines "local" for dates and the send hour.
	Location *time.Location
}

// DefaultConfig returns 30/14/7/1 day offsets, a weekly post-expiry
// reminder and a 09:00 New York send hour.
func DefaultConfig() Config {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return Config{
		Offsets:                []int{30, 14, 7, 1},
		PostExpiryIntervalDays: 7,
		SendHourLocal:          9,
		Location:               loc,
	}
}

// Validate checks the cadence and returns a copy with offsets deduplicated
// and sorted in descending order.
func (c Config) Validate() (Config, error) {
	if c.Location == nil {
		return c, errors.New("reminder location is not set")
	}
	if c.PostExpiryIntervalDays < 1 {
		return c, fmt.Errorf("post-expiry interval must be at least 1 day, got %d", c.PostExpiryIntervalDays)
	}
	if c.SendHourLocal < 0 || c.SendHourLocal > 23 {
		return c, fmt.Errorf("send hour must be within 0..23, got %d", c.SendHourLocal)
	}

	seen := map[int]struct{}{}
	offsets := make([]int, 0, len(c.Offsets))
	for _, o := range c.Offsets {
		if o < 0 {
			return c, fmt.Errorf("reminder offset must not be negative, got %d", o)
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		offsets = append(offsets, o)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))
	c.Offsets = offsets
	return c, nil
}

func (c Config) hasOffset(days int) bool {
	for _, o := range c.Offsets {
		if o == days {
			return true
		}
	}
	return false
}

package models

import (
	"maps"
	"regexp"
	"time"
)

const dayLayout = "2006-01-02"

var phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// ValidPhone reports whether phone looks like a mainland mobile number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// DailyCounter keeps a running total plus per-day tallies. It is only ever
// incremented, never recomputed from the records.
type DailyCounter struct {
	Total     int            `json:"total"`
	Today     int            `json:"today"`
	TodayDate string         `json:"todayDate,omitempty"`
	ByDay     map[string]int `json:"byDay"`
}

func (c *DailyCounter) Add(now time.Time) {
	day := now.Format(dayLayout)
	if c.TodayDate != day {
		c.TodayDate = day
		c.Today = 0
	}
	if c.ByDay == nil {
		c.ByDay = make(map[string]int)
	}
	c.Total++
	c.Today++
	c.ByDay[day]++
}

func (c DailyCounter) clone() DailyCounter {
	c.ByDay = maps.Clone(c.ByDay)
	return c
}

// View returns a copy whose Today reflects the date of now.
func (c DailyCounter) View(now time.Time) DailyCounter {
	out := c
	out.ByDay = maps.Clone(c.ByDay)
	if out.ByDay == nil {
		out.ByDay = map[string]int{}
	}
	if day := now.Format(dayLayout); out.TodayDate != day {
		out.TodayDate = day
		out.Today = 0
	}
	return out
}

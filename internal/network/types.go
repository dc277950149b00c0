package network

import "time"

type Station struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name" validate:"required"`
}

// Line is the schedule record of a transit line. Its path lives in the
// topology manager.
type Line struct {
	ID              int64  `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name" validate:"required"`
	StartTime       string `json:"startTime" yaml:"startTime" validate:"required,datetime=15:04"`
	LastTime        string `json:"lastTime" yaml:"lastTime" validate:"required,datetime=15:04"`
	IntervalMinutes int    `json:"timeInterval" yaml:"timeInterval" validate:"gt=0"`
	ExtraFare       int    `json:"extraFare" yaml:"extraFare" validate:"gte=0"`
}

// ServiceWindow returns the first and last departure on the given service day.
// A last departure before the first one runs past midnight.
func (l Line) ServiceWindow(day time.Time) (time.Time, time.Time, error) {
	first, err := clockOn(day, l.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last, err := clockOn(day, l.LastTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if last.Before(first) {
		last = last.Add(24 * time.Hour)
	}
	return first, last, nil
}

func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

package types

import (
	"fmt"
	"time"
)

// Period identifies a settlement month.
type Period struct {
	Year  int `json:"year" validate:"required,min=2000,max=9999"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

// PeriodOf returns the calendar month containing t in loc.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Period{Year: local.Year(), Month: int(local.Month())}
}

// Previous returns the month before p.
func (p Period) Previous() Period {
	if p.Month <= 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Validate reports whether the period is a real calendar month.
func (p Period) Validate() error {
	if p.Year < 2000 || p.Year > 9999 {
		return fmt.Errorf("invalid period year %d", p.Year)
	}
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("invalid period month %d", p.Month)
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

package model

import (
	"fmt"
	"time"
)

type Provider struct {
	ID                 string
	DisplayName        string
	Timezone           string
	FeeMinorUnits      int64
	Currency           string
	DefaultSlotMinutes int
}

// Location resolves the provider's IANA zone; empty means UTC.
func (p Provider) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("provider %s timezone: %w", p.ID, err)
	}
	return loc, nil
}

func (p Provider) DefaultSlot() time.Duration {
	if p.DefaultSlotMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(p.DefaultSlotMinutes) * time.Minute
}

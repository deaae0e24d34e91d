package reading

import (
	"time"

	ierr "github.com/condobill/condobill/internal/errors"
)

// Entry is one unit's meter reading plus billable service counts for the
// period.
type Entry struct {
	Reading      int64 `json:"reading"`
	CarWashCount int64 `json:"carWashCount,omitempty"`
}

// Period stores a billing period's meter readings keyed by unit. It is
// written once by reading ingestion and read once by the bill generator;
// never mutated after the period is billed.
type Period struct {
	PeriodID    string            `json:"periodId"`
	ReadingDate string            `json:"readingDate"`
	Units       map[string]*Entry `json:"units"`
	CreatedAt   time.Time         `json:"createdAt"`
	CreatedBy   string            `json:"createdBy"`
}

func (p *Period) Validate() error {
	if p.PeriodID == "" {
		return ierr.NewError("periodId is required").Mark(ierr.ErrValidation)
	}
	if len(p.Units) == 0 {
		return ierr.NewError("readings must cover at least one unit").
			Mark(ierr.ErrValidation)
	}
	for unitID, e := range p.Units {
		if e == nil || e.Reading < 0 {
			return ierr.NewErrorf("invalid reading for unit %s", unitID).
				WithHint("Meter readings must be non-negative").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

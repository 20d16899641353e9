package processing

import (
	"time"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// EmbargoPolicy decides whether a protected observation is withheld from the
// public stream altogether instead of being published in diffused form.
type EmbargoPolicy interface {
	Excluded(obs *observation.Observation, now time.Time) bool
}

// CurrentMonthEmbargo withholds protected observations whose event starts in
// the current calendar month. Once the month has passed they are diffused
// and published like any other protected observation.
type CurrentMonthEmbargo struct {
	Enabled bool
}

func (e CurrentMonthEmbargo) Excluded(obs *observation.Observation, now time.Time) bool {
	if !e.Enabled || !obs.IsProtected() {
		return false
	}
	if obs.Event == nil || obs.Event.StartDate == nil {
		return false
	}
	start := obs.Event.StartDate.In(now.Location())
	return start.Year() == now.Year() && start.Month() == now.Month()
}

// NoEmbargo never withholds anything.
type NoEmbargo struct{}

func (NoEmbargo) Excluded(*observation.Observation, time.Time) bool { return false }

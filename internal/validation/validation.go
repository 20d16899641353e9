// Package validation checks canonical observations against data quality rules.
//
// A failed check is a value, not an error: Validate returns a Result listing
// every Defect found, and the caller decides whether to drop, count or sample
// the observation. Rules are pluggable; DefaultRules covers the checks every
// stored observation must pass.
package validation

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// DefectType classifies a defect.
type DefectType string

const (
	MissingOccurrenceID          DefectType = "MissingOccurrenceId"
	MissingTaxon                 DefectType = "MissingTaxon"
	UnknownTaxon                 DefectType = "UnknownTaxon"
	MissingCoordinates           DefectType = "MissingCoordinates"
	CoordinatesOutOfRange        DefectType = "CoordinatesOutOfRange"
	CoordinateUncertaintyTooHigh DefectType = "CoordinateUncertaintyTooHigh"
	MissingEventDate             DefectType = "MissingEventDate"
	StartDateAfterEndDate        DefectType = "StartDateAfterEndDate"
	EventDateInFuture            DefectType = "EventDateInFuture"
)

// Defect is a single failed check.
type Defect struct {
	Type    DefectType `json:"type"`
	Field   string     `json:"field,omitempty"`
	Message string     `json:"message"`
}

func (d Defect) Error() string {
	if d.Field != "" {
		return fmt.Sprintf("%s: %s", d.Field, d.Message)
	}
	return d.Message
}

// Result is the outcome of validating one observation.
type Result struct {
	Valid   bool     `json:"valid"`
	Defects []Defect `json:"defects,omitempty"`
}

// Rule inspects an observation and returns the defects it finds, or nil.
type Rule interface {
	Check(obs *observation.Observation) []Defect
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(obs *observation.Observation) []Defect

func (f RuleFunc) Check(obs *observation.Observation) []Defect { return f(obs) }

// Validator runs a fixed rule set. It holds no mutable state and may be
// shared across goroutines.
type Validator struct {
	rules []Rule
}

// New returns a validator running rules in order.
func New(rules ...Rule) *Validator {
	return &Validator{rules: rules}
}

// Validate runs every rule and collects all defects.
func (v *Validator) Validate(obs *observation.Observation) Result {
	res := Result{Valid: true}
	for _, r := range v.rules {
		if defects := r.Check(obs); len(defects) > 0 {
			res.Valid = false
			res.Defects = append(res.Defects, defects...)
		}
	}
	return res
}

// ValidateFirst stops at the first failing rule. Use it when only pass/fail matters.
func (v *Validator) ValidateFirst(obs *observation.Observation) error {
	for _, r := range v.rules {
		if defects := r.Check(obs); len(defects) > 0 {
			return defects[0]
		}
	}
	return nil
}

// Partition splits observations into valid ones and a count of invalid ones.
func (v *Validator) Partition(obs []*observation.Observation) (valid []*observation.Observation, invalid int) {
	valid = make([]*observation.Observation, 0, len(obs))
	for _, o := range obs {
		if v.ValidateFirst(o) != nil {
			invalid++
			continue
		}
		valid = append(valid, o)
	}
	return valid, invalid
}

// Options tunes DefaultRules.
type Options struct {
	// MaxCoordinateUncertainty in meters; zero disables the check.
	MaxCoordinateUncertainty int
	// Now is the clock used for the future date check. Defaults to time.Now.
	Now func() time.Time
}

// DefaultMaxCoordinateUncertainty is used when the configuration does not set one.
const DefaultMaxCoordinateUncertainty = 100000

// DefaultRules returns the standard rule set.
func DefaultRules(opts Options) []Rule {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rules := []Rule{
		RuleFunc(checkOccurrenceID),
		RuleFunc(checkTaxon),
		RuleFunc(checkCoordinates),
	}
	if opts.MaxCoordinateUncertainty > 0 {
		rules = append(rules, MaxUncertaintyRule(opts.MaxCoordinateUncertainty))
	}
	rules = append(rules, RuleFunc(checkEventDates), FutureDateRule(now))
	return rules
}

// NewDefault returns a validator running DefaultRules.
func NewDefault(opts Options) *Validator {
	return New(DefaultRules(opts)...)
}

func checkOccurrenceID(obs *observation.Observation) []Defect {
	if obs.Occurrence == nil || obs.Occurrence.OccurrenceID == "" {
		return []Defect{{Type: MissingOccurrenceID, Field: "occurrenceID", Message: "occurrence id is missing"}}
	}
	return nil
}

func checkTaxon(obs *observation.Observation) []Defect {
	switch {
	case obs.Taxon == nil:
		return []Defect{{Type: MissingTaxon, Field: "taxonID", Message: "taxon is missing"}}
	case obs.Taxon.ID <= 0:
		return []Defect{{Type: UnknownTaxon, Field: "taxonID", Message: fmt.Sprintf("taxon %q not found", obs.Taxon.ScientificName)}}
	}
	return nil
}

func checkCoordinates(obs *observation.Observation) []Defect {
	loc := obs.Location
	if !loc.HasCoordinates() {
		return []Defect{{Type: MissingCoordinates, Field: "decimalLatitude", Message: "coordinates are missing"}}
	}
	var defects []Defect
	if lat := *loc.DecimalLatitude; lat < -90 || lat > 90 {
		defects = append(defects, Defect{Type: CoordinatesOutOfRange, Field: "decimalLatitude", Message: fmt.Sprintf("latitude %g out of range", lat)})
	}
	if lon := *loc.DecimalLongitude; lon < -180 || lon > 180 {
		defects = append(defects, Defect{Type: CoordinatesOutOfRange, Field: "decimalLongitude", Message: fmt.Sprintf("longitude %g out of range", lon)})
	}
	return defects
}

// MaxUncertaintyRule rejects observations whose coordinate uncertainty exceeds limit meters.
func MaxUncertaintyRule(limit int) Rule {
	return RuleFunc(func(obs *observation.Observation) []Defect {
		if obs.Location == nil || obs.Location.CoordinateUncertaintyInMeters == nil {
			return nil
		}
		if u := *obs.Location.CoordinateUncertaintyInMeters; u > limit {
			return []Defect{{
				Type:    CoordinateUncertaintyTooHigh,
				Field:   "coordinateUncertaintyInMeters",
				Message: fmt.Sprintf("coordinate uncertainty %d exceeds limit %d", u, limit),
			}}
		}
		return nil
	})
}

func checkEventDates(obs *observation.Observation) []Defect {
	ev := obs.Event
	if ev == nil || ev.StartDate == nil {
		return []Defect{{Type: MissingEventDate, Field: "eventDate", Message: "event date is missing"}}
	}
	if ev.EndDate != nil && ev.StartDate.After(*ev.EndDate) {
		return []Defect{{Type: StartDateAfterEndDate, Field: "eventDate", Message: "event start date is after end date"}}
	}
	return nil
}

// FutureDateRule rejects events that start after now.
func FutureDateRule(now func() time.Time) Rule {
	return RuleFunc(func(obs *observation.Observation) []Defect {
		if obs.Event == nil || obs.Event.StartDate == nil {
			return nil
		}
		if obs.Event.StartDate.After(now()) {
			return []Defect{{Type: EventDateInFuture, Field: "eventDate", Message: "event date is in the future"}}
		}
		return nil
	})
}

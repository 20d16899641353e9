package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func validObs() *observation.Observation {
	return &observation.Observation{
		Occurrence: &observation.Occurrence{OccurrenceID: "occ-1"},
		Taxon:      &observation.Taxon{ID: 102933, ScientificName: "Parus major"},
		Location: &observation.Location{
			DecimalLatitude:               observation.Float(59.3),
			DecimalLongitude:              observation.Float(18.0),
			CoordinateUncertaintyInMeters: observation.Int(50),
		},
		Event: &observation.Event{
			StartDate: observation.Time(fixedNow.Add(-48 * time.Hour)),
			EndDate:   observation.Time(fixedNow.Add(-47 * time.Hour)),
		},
	}
}

func newValidator() *Validator {
	return NewDefault(Options{MaxCoordinateUncertainty: 1000, Now: func() time.Time { return fixedNow }})
}

func TestValidate_Valid(t *testing.T) {
	res := newValidator().Validate(validObs())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Defects)
}

func TestValidate_Defects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *observation.Observation)
		want   DefectType
	}{
		{"missing occurrence id", func(o *observation.Observation) { o.Occurrence.OccurrenceID = "" }, MissingOccurrenceID},
		{"missing taxon", func(o *observation.Observation) { o.Taxon = nil }, MissingTaxon},
		{"unknown taxon", func(o *observation.Observation) { o.Taxon.ID = 0 }, UnknownTaxon},
		{"missing coordinates", func(o *observation.Observation) { o.Location.DecimalLatitude = nil }, MissingCoordinates},
		{"latitude out of range", func(o *observation.Observation) { o.Location.DecimalLatitude = observation.Float(91) }, CoordinatesOutOfRange},
		{"uncertainty too high", func(o *observation.Observation) { o.Location.CoordinateUncertaintyInMeters = observation.Int(5000) }, CoordinateUncertaintyTooHigh},
		{"missing event", func(o *observation.Observation) { o.Event = nil }, MissingEventDate},
		{"start after end", func(o *observation.Observation) {
			o.Event.EndDate = observation.Time(fixedNow.Add(-72 * time.Hour))
		}, StartDateAfterEndDate},
		{"future event", func(o *observation.Observation) {
			o.Event.StartDate = observation.Time(fixedNow.Add(24 * time.Hour))
			o.Event.EndDate = nil
		}, EventDateInFuture},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := validObs()
			tt.mutate(obs)

			res := newValidator().Validate(obs)
			require.False(t, res.Valid)
			require.Len(t, res.Defects, 1)
			assert.Equal(t, tt.want, res.Defects[0].Type)
			assert.NotEmpty(t, res.Defects[0].Message)

			err := newValidator().ValidateFirst(obs)
			require.Error(t, err)
			var d Defect
			require.ErrorAs(t, err, &d)
			assert.Equal(t, tt.want, d.Type)
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	obs := validObs()
	obs.Occurrence.OccurrenceID = ""
	obs.Taxon = nil
	obs.Location.DecimalLongitude = observation.Float(200)

	res := newValidator().Validate(obs)
	assert.False(t, res.Valid)
	assert.Len(t, res.Defects, 3)
}

func TestMaxUncertaintyDisabled(t *testing.T) {
	v := NewDefault(Options{Now: func() time.Time { return fixedNow }})
	obs := validObs()
	obs.Location.CoordinateUncertaintyInMeters = observation.Int(1_000_000)
	assert.True(t, v.Validate(obs).Valid)
}

func TestPartition(t *testing.T) {
	bad := validObs()
	bad.Taxon = nil
	valid, invalid := newValidator().Partition([]*observation.Observation{validObs(), bad, validObs()})
	assert.Len(t, valid, 2)
	assert.Equal(t, 1, invalid)
}

func TestCustomRule(t *testing.T) {
	noOwls := RuleFunc(func(o *observation.Observation) []Defect {
		if o.Taxon != nil && o.Taxon.ScientificName == "Strix aluco" {
			return []Defect{{Type: "Owl", Message: "no owls"}}
		}
		return nil
	})
	v := New(noOwls)
	obs := validObs()
	assert.True(t, v.Validate(obs).Valid)
	obs.Taxon.ScientificName = "Strix aluco"
	assert.False(t, v.Validate(obs).Valid)
}

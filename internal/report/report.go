// Package report audits a provider's verbatim data: how much of it maps and
// validates, which defects occur, and how controlled vocabulary values are
// used. Memory stays bounded however large the source is.
package report

import (
	"time"

	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/validation"
)

// Sentinels stand in for verbatim values that were not usable as bucket keys.
const (
	// NullValue marks a term that was absent from the record.
	NullValue = "[null]"
	// EmptyValue marks a term that was present but blank.
	EmptyValue = "[empty]"
)

// Options bounds one report run.
type Options struct {
	MaxNrObservationsToRead       int `json:"maxNrObservationsToRead"`
	NrValidObservationsInReport   int `json:"nrValidObservationsInReport"`
	NrInvalidObservationsInReport int `json:"nrInvalidObservationsInReport"`
	MaxVerbatimValuesPerBucket    int `json:"maxVerbatimValuesPerBucket"`
}

// DefaultOptions is used for any option left at zero.
var DefaultOptions = Options{
	MaxNrObservationsToRead:       100000,
	NrValidObservationsInReport:   10,
	NrInvalidObservationsInReport: 100,
	MaxVerbatimValuesPerBucket:    20,
}

func (o Options) withDefaults() Options {
	if o.MaxNrObservationsToRead <= 0 {
		o.MaxNrObservationsToRead = DefaultOptions.MaxNrObservationsToRead
	}
	if o.NrValidObservationsInReport < 0 {
		o.NrValidObservationsInReport = 0
	}
	if o.NrInvalidObservationsInReport < 0 {
		o.NrInvalidObservationsInReport = 0
	}
	if o.MaxVerbatimValuesPerBucket <= 0 {
		o.MaxVerbatimValuesPerBucket = DefaultOptions.MaxVerbatimValuesPerBucket
	}
	return o
}

// Sample is one retained example record.
type Sample struct {
	VerbatimID  int64                    `json:"verbatimId"`
	Verbatim    map[string]string        `json:"verbatim"`
	Observation *observation.Observation `json:"observation"`
	Defects     []validation.Defect      `json:"defects,omitempty"`
}

// VerbatimCount is a verbatim spelling and how often it was seen.
type VerbatimCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// VocabularyBucket is one processed vocabulary value.
type VocabularyBucket struct {
	ID       int             `json:"id"`
	Value    string          `json:"value"`
	Custom   bool            `json:"custom"`
	Count    int             `json:"count"`
	Verbatim []VerbatimCount `json:"verbatim"`
}

// VocabularyHistogram is the value distribution of one vocabulary field.
// Buckets are sorted by count, highest first.
type VocabularyHistogram struct {
	Vocabulary string             `json:"vocabulary"`
	Field      string             `json:"field"`
	Buckets    []VocabularyBucket `json:"buckets"`
}

// TaxonRollup counts observations of one taxon.
type TaxonRollup struct {
	TaxonID         int    `json:"taxonId"`
	ScientificName  string `json:"scientificName"`
	RedlistCategory string `json:"redlistCategory,omitempty"`
	ProtectedByLaw  bool   `json:"protectedByLaw"`
	ProtectionLevel int    `json:"protectionLevel"`
	Count           int    `json:"count"`
}

// Report is the result of one run. It is built once and not modified after
// Create returns.
type Report struct {
	ID                 string    `json:"id"`
	ProviderID         int       `json:"providerId"`
	ProviderIdentifier string    `json:"providerIdentifier"`
	Created            time.Time `json:"created"`
	Duration           string    `json:"duration"`
	Options            Options   `json:"options"`

	NrObservationsRead    int  `json:"nrObservationsRead"`
	NrValidObservations   int  `json:"nrValidObservations"`
	NrInvalidObservations int  `json:"nrInvalidObservations"`
	NrFailedToMap         int  `json:"nrFailedToMap"`
	BudgetReached         bool `json:"budgetReached"`

	ValidSamples   []Sample                      `json:"validSamples"`
	InvalidSamples []Sample                      `json:"invalidSamples"`
	DefectCounts   map[validation.DefectType]int `json:"defectCounts"`

	Vocabularies        []VocabularyHistogram `json:"vocabularies"`
	Taxa                []TaxonRollup         `json:"taxa"`
	RedlistCategories   map[string]int        `json:"redlistCategories"`
	ProtectedByLawCount int                   `json:"protectedByLawCount"`
}

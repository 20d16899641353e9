// Package observation holds the canonical observation model that every data
// provider is mapped into, together with the provider, vocabulary and field
// description types shared by processing, diffusion, export and reporting.
//
// An Observation is owned by the batch that created it. Diffusion never
// mutates an observation in place; it derives a new one with Clone so the
// protected original and its public copy can coexist.
package observation

import (
	"time"

	"github.com/paulmach/orb"
)

// DiffusionStatus tells whether the location of an observation has been coarsened.
type DiffusionStatus int

const (
	NotDiffused DiffusionStatus = iota
	DiffusedByProvider
	DiffusedBySystem
)

func (s DiffusionStatus) String() string {
	switch s {
	case DiffusedByProvider:
		return "DiffusedByProvider"
	case DiffusedBySystem:
		return "DiffusedBySystem"
	default:
		return "NotDiffused"
	}
}

// Observation is the canonical occurrence record.
type Observation struct {
	// ID is the stable occurrence URN, also used as natural key in storage.
	ID             string
	DataProviderID int
	DatasetName    string
	BasisOfRecord  VocabularyValue
	AccessRights   VocabularyValue
	Modified       *time.Time

	DiffusionStatus DiffusionStatus

	Taxon          *Taxon
	Event          *Event
	Location       *Location
	Occurrence     *Occurrence
	Identification *Identification

	MeasurementOrFacts []ExtendedMeasurementOrFact
	Media              []Multimedia

	// ProviderInternal carries provider specific values that never leave the system.
	ProviderInternal *ProviderInternal
}

// Event describes when the observation was made.
type Event struct {
	EventID           string
	StartDate         *time.Time
	EndDate           *time.Time
	VerbatimEventDate string
	SamplingProtocol  string
	Habitat           string
	EventRemarks      string
}

// Area is an administrative area resolved from a coordinate.
type Area struct {
	FeatureID string
	Name      string
}

// Location describes where the observation was made.
type Location struct {
	DecimalLatitude               *float64
	DecimalLongitude              *float64
	CoordinateUncertaintyInMeters *int
	GeodeticDatum                 string

	// Sweref99TmX and Sweref99TmY are the planar (EPSG:3006) coordinates in meters.
	Sweref99TmX *float64
	Sweref99TmY *float64

	Country      string
	CountryCode  string
	County       *Area
	Municipality *Area
	Parish       *Area
	Province     *Area

	Locality         string
	LocationID       string
	LocationRemarks  string
	VerbatimLocality string

	VerbatimLatitude         string
	VerbatimLongitude        string
	VerbatimCoordinates      string
	VerbatimCoordinateSystem string
	FootprintWKT             string

	PointWithBuffer            orb.Polygon
	PointWithDisturbanceBuffer orb.Polygon
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.DecimalLatitude != nil && l.DecimalLongitude != nil
}

// Point returns the WGS84 point as lon/lat.
func (l *Location) Point() (orb.Point, bool) {
	if !l.HasCoordinates() {
		return orb.Point{}, false
	}
	return orb.Point{*l.DecimalLongitude, *l.DecimalLatitude}, true
}

// Occurrence holds recorder and protection metadata.
type Occurrence struct {
	OccurrenceID      string
	CatalogNumber     string
	RecordedBy        string
	ReportedBy        string
	ReportedByUserID  string
	ReportedDate      *time.Time
	IndividualCount   string
	OrganismQuantity  string
	Sex               VocabularyValue
	LifeStage         VocabularyValue
	Activity          VocabularyValue
	OccurrenceStatus  VocabularyValue
	OccurrenceRemarks string
	URL               string

	// ProtectionLevel is the level set on the occurrence itself, 1..5.
	ProtectionLevel int
	Sensitive       bool
}

// Identification describes how the taxon was determined.
type Identification struct {
	IdentifiedBy       string
	DateIdentified     string
	Verified           bool
	VerificationStatus VocabularyValue
}

// ExtendedMeasurementOrFact is one row of the measurement-or-fact extension.
type ExtendedMeasurementOrFact struct {
	MeasurementID             string
	MeasurementType           string
	MeasurementValue          string
	MeasurementUnit           string
	MeasurementDeterminedDate string
	MeasurementMethod         string
	MeasurementRemarks        string
}

// Multimedia is one row of the multimedia extension.
type Multimedia struct {
	Type       string
	Format     string
	Identifier string
	References string
	Title      string
	Created    string
	Creator    string
	License    string
}

// ProviderInternal is the provider extension block.
type ProviderInternal struct {
	VerbatimID       int64
	SiteID           string
	ReportedByUserID string
	ExternalIDs      map[string]string
}

// ProtectionLevel returns the effective protection level: the highest of the
// occurrence level and the taxon level, clamped to 1..5.
func (o *Observation) ProtectionLevel() int {
	level := MinProtectionLevel
	if o.Occurrence != nil && o.Occurrence.ProtectionLevel > level {
		level = o.Occurrence.ProtectionLevel
	}
	if o.Taxon != nil && o.Taxon.ProtectionLevel > level {
		level = o.Taxon.ProtectionLevel
	}
	return ClampProtectionLevel(level)
}

// IsProtected reports whether the observation belongs in the protected stream.
func (o *Observation) IsProtected() bool {
	return IsSensitiveLevel(o.ProtectionLevel())
}

// Clone returns a deep copy of the observation.
func (o *Observation) Clone() *Observation {
	if o == nil {
		return nil
	}
	c := *o
	c.Modified = cloneTime(o.Modified)

	if o.Taxon != nil {
		t := *o.Taxon
		t.DisturbanceRadius = cloneInt(o.Taxon.DisturbanceRadius)
		c.Taxon = &t
	}
	if o.Event != nil {
		e := *o.Event
		e.StartDate = cloneTime(o.Event.StartDate)
		e.EndDate = cloneTime(o.Event.EndDate)
		c.Event = &e
	}
	if o.Location != nil {
		c.Location = o.Location.clone()
	}
	if o.Occurrence != nil {
		oc := *o.Occurrence
		oc.ReportedDate = cloneTime(o.Occurrence.ReportedDate)
		c.Occurrence = &oc
	}
	if o.Identification != nil {
		id := *o.Identification
		c.Identification = &id
	}
	if o.MeasurementOrFacts != nil {
		c.MeasurementOrFacts = append([]ExtendedMeasurementOrFact(nil), o.MeasurementOrFacts...)
	}
	if o.Media != nil {
		c.Media = append([]Multimedia(nil), o.Media...)
	}
	if o.ProviderInternal != nil {
		pi := *o.ProviderInternal
		if o.ProviderInternal.ExternalIDs != nil {
			pi.ExternalIDs = make(map[string]string, len(o.ProviderInternal.ExternalIDs))
			for k, v := range o.ProviderInternal.ExternalIDs {
				pi.ExternalIDs[k] = v
			}
		}
		c.ProviderInternal = &pi
	}
	return &c
}

func (l *Location) clone() *Location {
	c := *l
	c.DecimalLatitude = cloneFloat(l.DecimalLatitude)
	c.DecimalLongitude = cloneFloat(l.DecimalLongitude)
	c.CoordinateUncertaintyInMeters = cloneInt(l.CoordinateUncertaintyInMeters)
	c.Sweref99TmX = cloneFloat(l.Sweref99TmX)
	c.Sweref99TmY = cloneFloat(l.Sweref99TmY)
	c.County = cloneArea(l.County)
	c.Municipality = cloneArea(l.Municipality)
	c.Parish = cloneArea(l.Parish)
	c.Province = cloneArea(l.Province)
	c.PointWithBuffer = l.PointWithBuffer.Clone()
	c.PointWithDisturbanceBuffer = l.PointWithDisturbanceBuffer.Clone()
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneArea(a *Area) *Area {
	if a == nil {
		return nil
	}
	v := *a
	return &v
}

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }

package processing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/JonMunkholm/biopipe/internal/diffusion"
	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/verbatim"
)

// DwcMapper maps records whose fields are Darwin Core terms.
type DwcMapper struct {
	provider *observation.DataProvider
	lookups  *Lookups
}

// NewDwcMapper is the MapperFactory of DwcMapper.
func NewDwcMapper(provider *observation.DataProvider, lookups *Lookups) Mapper {
	return &DwcMapper{provider: provider, lookups: lookups}
}

// Map builds the observation. Malformed coordinates, numbers or dates are
// mapping errors; missing values are left for validation.
func (m *DwcMapper) Map(rec verbatim.Record) (*observation.Observation, error) {
	obs := &observation.Observation{
		DataProviderID: m.provider.ID,
		DatasetName:    firstNonEmpty(rec.Value("datasetName"), m.provider.Name),
		BasisOfRecord:  m.lookups.Resolve(observation.VocabularyBasisOfRecord, rec.Value("basisOfRecord")),
		ProviderInternal: &observation.ProviderInternal{
			VerbatimID: rec.ID,
			SiteID:     rec.Value("locationID"),
		},
	}

	occurrenceID := rec.Value("occurrenceID")
	if occurrenceID != "" {
		obs.ID = fmt.Sprintf("urn:lsid:%s:occurrence:%s", m.provider.Identifier, occurrenceID)
	} else {
		obs.ID = fmt.Sprintf("urn:lsid:%s:verbatim:%d", m.provider.Identifier, rec.ID)
	}

	var err error
	if obs.Modified, err = parseOptionalTime(rec.Value("modified")); err != nil {
		return nil, fmt.Errorf("modified: %w", err)
	}
	obs.Taxon = m.mapTaxon(rec)
	if obs.Event, err = mapEvent(rec); err != nil {
		return nil, err
	}
	if obs.Location, err = m.mapLocation(rec); err != nil {
		return nil, err
	}
	if obs.Occurrence, err = m.mapOccurrence(rec, occurrenceID); err != nil {
		return nil, err
	}
	obs.Identification = &observation.Identification{
		IdentifiedBy:       rec.Value("identifiedBy"),
		DateIdentified:     rec.Value("dateIdentified"),
		VerificationStatus: m.lookups.Resolve(observation.VocabularyVerificationStatus, rec.Value("identificationVerificationStatus")),
	}
	obs.Identification.Verified = strings.EqualFold(obs.Identification.VerificationStatus.Value, "verified")

	obs.MeasurementOrFacts = mapMeasurement(rec)
	obs.Media = mapMedia(rec)

	obs.AccessRights = m.lookups.Resolve(observation.VocabularyAccessRights, rec.Value("accessRights"))
	if obs.IsProtected() {
		obs.AccessRights = observation.NotForPublicUse
		obs.Occurrence.Sensitive = true
	} else if obs.AccessRights.IsZero() {
		obs.AccessRights = observation.FreeUsage
	}
	return obs, nil
}

// mapTaxon resolves taxonID first, then scientificName. A taxon that was
// named but not found keeps the verbatim name with id 0.
func (m *DwcMapper) mapTaxon(rec verbatim.Record) *observation.Taxon {
	if raw := rec.Value("taxonID"); raw != "" {
		if id, ok := parseTaxonID(raw); ok {
			if t, found := m.lookups.Taxon(id); found {
				c := *t
				return &c
			}
		}
	}
	name := rec.Value("scientificName")
	if name != "" {
		if t, found := m.lookups.TaxonByName(name); found {
			c := *t
			return &c
		}
	}
	if name == "" && rec.Value("taxonID") == "" {
		return nil
	}
	return &observation.Taxon{ScientificName: firstNonEmpty(name, rec.Value("taxonID"))}
}

// parseTaxonID accepts a bare integer or an LSID ending in one, such as
// urn:lsid:dyntaxa.se:Taxon:102933.
func parseTaxonID(s string) (int, bool) {
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func mapEvent(rec verbatim.Record) (*observation.Event, error) {
	ev := &observation.Event{
		EventID:           rec.Value("eventID"),
		VerbatimEventDate: rec.Value("verbatimEventDate"),
		SamplingProtocol:  rec.Value("samplingProtocol"),
		Habitat:           rec.Value("habitat"),
		EventRemarks:      rec.Value("eventRemarks"),
	}
	raw := rec.Value("eventDate")
	if raw == "" {
		return ev, nil
	}
	start, end, err := parseEventDate(raw)
	if err != nil {
		return nil, fmt.Errorf("eventDate: %w", err)
	}
	ev.StartDate = &start
	ev.EndDate = &end
	if ev.VerbatimEventDate == "" {
		ev.VerbatimEventDate = raw
	}
	return ev, nil
}

func (m *DwcMapper) mapLocation(rec verbatim.Record) (*observation.Location, error) {
	loc := &observation.Location{
		GeodeticDatum:            firstNonEmpty(rec.Value("geodeticDatum"), "EPSG:4326"),
		Country:                  rec.Value("country"),
		CountryCode:              rec.Value("countryCode"),
		Locality:                 rec.Value("locality"),
		LocationID:               rec.Value("locationID"),
		LocationRemarks:          rec.Value("locationRemarks"),
		VerbatimLocality:         rec.Value("verbatimLocality"),
		VerbatimLatitude:         rec.Value("verbatimLatitude"),
		VerbatimLongitude:        rec.Value("verbatimLongitude"),
		VerbatimCoordinates:      rec.Value("verbatimCoordinates"),
		VerbatimCoordinateSystem: rec.Value("verbatimCoordinateSystem"),
		FootprintWKT:             rec.Value("footprintWKT"),
		County:                   area(rec.Value("county")),
		Municipality:             area(rec.Value("municipality")),
		Province:                 area(rec.Value("stateProvince")),
		Parish:                   area(rec.Value("parish")),
	}

	var err error
	if loc.DecimalLatitude, err = parseOptionalFloat(rec.Value("decimalLatitude")); err != nil {
		return nil, fmt.Errorf("decimalLatitude: %w", err)
	}
	if loc.DecimalLongitude, err = parseOptionalFloat(rec.Value("decimalLongitude")); err != nil {
		return nil, fmt.Errorf("decimalLongitude: %w", err)
	}
	uncertainty, err := parseOptionalFloat(rec.Value("coordinateUncertaintyInMeters"))
	if err != nil {
		return nil, fmt.Errorf("coordinateUncertaintyInMeters: %w", err)
	}
	if uncertainty != nil {
		loc.CoordinateUncertaintyInMeters = observation.Int(int(math.Round(*uncertainty)))
	}

	if p, ok := loc.Point(); ok && validLatLon(p) {
		x, y := diffusion.ToSweref99TM(p.Lat(), p.Lon())
		loc.Sweref99TmX = observation.Float(x)
		loc.Sweref99TmY = observation.Float(y)
		radius := 1.0
		if loc.CoordinateUncertaintyInMeters != nil && *loc.CoordinateUncertaintyInMeters > 0 {
			radius = float64(*loc.CoordinateUncertaintyInMeters)
		}
		loc.PointWithBuffer = diffusion.BufferCircle(p, radius, diffusion.BufferSegments)
	}
	return loc, nil
}

func validLatLon(p orb.Point) bool {
	return p.Lat() >= -90 && p.Lat() <= 90 && p.Lon() >= -180 && p.Lon() <= 180
}

func (m *DwcMapper) mapOccurrence(rec verbatim.Record, occurrenceID string) (*observation.Occurrence, error) {
	oc := &observation.Occurrence{
		OccurrenceID:      occurrenceID,
		CatalogNumber:     rec.Value("catalogNumber"),
		RecordedBy:        rec.Value("recordedBy"),
		ReportedBy:        rec.Value("reportedBy"),
		IndividualCount:   rec.Value("individualCount"),
		OrganismQuantity:  rec.Value("organismQuantity"),
		Sex:               m.lookups.Resolve(observation.VocabularySex, rec.Value("sex")),
		LifeStage:         m.lookups.Resolve(observation.VocabularyLifeStage, rec.Value("lifeStage")),
		Activity:          m.lookups.Resolve(observation.VocabularyActivity, rec.Value("behavior")),
		OccurrenceStatus:  m.lookups.Resolve(observation.VocabularyOccurrenceStatus, rec.Value("occurrenceStatus")),
		OccurrenceRemarks: rec.Value("occurrenceRemarks"),
		URL:               rec.Value("references"),
	}

	var err error
	if oc.ReportedDate, err = parseOptionalTime(rec.Value("reportedDate")); err != nil {
		return nil, fmt.Errorf("reportedDate: %w", err)
	}
	if raw := rec.Value("protectionLevel"); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("protectionLevel: %w", err)
		}
		oc.ProtectionLevel = observation.ClampProtectionLevel(level)
	}
	return oc, nil
}

func mapMeasurement(rec verbatim.Record) []observation.ExtendedMeasurementOrFact {
	typ := rec.Value("measurementType")
	if typ == "" {
		return nil
	}
	return []observation.ExtendedMeasurementOrFact{{
		MeasurementID:             rec.Value("measurementID"),
		MeasurementType:           typ,
		MeasurementValue:          rec.Value("measurementValue"),
		MeasurementUnit:           rec.Value("measurementUnit"),
		MeasurementDeterminedDate: rec.Value("measurementDeterminedDate"),
		MeasurementMethod:         rec.Value("measurementMethod"),
		MeasurementRemarks:        rec.Value("measurementRemarks"),
	}}
}

// mapMedia splits associatedMedia on '|', the Darwin Core list separator.
func mapMedia(rec verbatim.Record) []observation.Multimedia {
	raw := rec.Value("associatedMedia")
	if raw == "" {
		return nil
	}
	var media []observation.Multimedia
	for _, u := range strings.Split(raw, "|") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		media = append(media, observation.Multimedia{
			Type:       "StillImage",
			Identifier: u,
			References: u,
			Creator:    rec.Value("recordedBy"),
			License:    rec.Value("license"),
		})
	}
	return media
}

func area(name string) *observation.Area {
	if name == "" {
		return nil
	}
	return &observation.Area{Name: name}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return &f, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseEventDate accepts a single date/time, an ISO 8601 interval "a/b",
// a year-month or a year. Partial dates span the whole period.
func parseEventDate(s string) (start, end time.Time, err error) {
	if a, b, ok := strings.Cut(s, "/"); ok {
		if start, _, err = parseEventDate(a); err != nil {
			return
		}
		if _, end, err = parseEventDate(b); err != nil {
			return
		}
		return start, end, nil
	}
	if t, perr := time.Parse("2006-01", s); perr == nil {
		return t, t.AddDate(0, 1, 0).Add(-time.Second), nil
	}
	if t, perr := time.Parse("2006", s); perr == nil {
		return t, t.AddDate(1, 0, 0).Add(-time.Second), nil
	}
	t, err := parseTime(s)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return t, t, nil
}

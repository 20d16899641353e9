package dwca

import (
	"bufio"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// Rows are tab separated with '\n' line ends and no quoting, as declared in
// meta.xml. Tabs and line breaks inside values become spaces.
var valueReplacer = strings.NewReplacer("\t", " ", "\r\n", " ", "\r", " ", "\n", " ")

func sanitize(v string) string {
	if !strings.ContainsAny(v, "\t\r\n") {
		return v
	}
	return valueReplacer.Replace(v)
}

func writeRow(w *bufio.Writer, values []string) error {
	for i, v := range values {
		if i > 0 {
			if err := w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(sanitize(v)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

func writeHeader(w *bufio.Writer, kind PartKind) error {
	fields := kind.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return writeRow(w, names)
}

type extractor func(o *observation.Observation) string

var occurrenceColumns = map[string]extractor{
	"occurrenceID":  func(o *observation.Observation) string { return o.ID },
	"basisOfRecord": func(o *observation.Observation) string { return o.BasisOfRecord.Value },
	"modified":      func(o *observation.Observation) string { return formatTime(o.Modified) },
	"accessRights":  func(o *observation.Observation) string { return o.AccessRights.Value },
	"datasetName":   func(o *observation.Observation) string { return o.DatasetName },
	"informationWithheld": func(o *observation.Observation) string {
		if o.DiffusionStatus != observation.NotDiffused {
			return "Location and dates are generalized"
		}
		return ""
	},
	"catalogNumber":     occ(func(oc *observation.Occurrence) string { return oc.CatalogNumber }),
	"recordedBy":        occ(func(oc *observation.Occurrence) string { return oc.RecordedBy }),
	"individualCount":   occ(func(oc *observation.Occurrence) string { return oc.IndividualCount }),
	"organismQuantity":  occ(func(oc *observation.Occurrence) string { return oc.OrganismQuantity }),
	"sex":               occ(func(oc *observation.Occurrence) string { return oc.Sex.Value }),
	"lifeStage":         occ(func(oc *observation.Occurrence) string { return oc.LifeStage.Value }),
	"occurrenceStatus":  occ(func(oc *observation.Occurrence) string { return oc.OccurrenceStatus.Value }),
	"occurrenceRemarks": occ(func(oc *observation.Occurrence) string { return oc.OccurrenceRemarks }),
	"eventID":           ev(func(e *observation.Event) string { return e.EventID }),
	"eventDate":         ev(formatEventDate),
	"verbatimEventDate": ev(func(e *observation.Event) string { return e.VerbatimEventDate }),
	"samplingProtocol":  ev(func(e *observation.Event) string { return e.SamplingProtocol }),
	"habitat":           ev(func(e *observation.Event) string { return e.Habitat }),
	"locationID":        loc(func(l *observation.Location) string { return l.LocationID }),
	"country":           loc(func(l *observation.Location) string { return l.Country }),
	"countryCode":       loc(func(l *observation.Location) string { return l.CountryCode }),
	"county":            loc(func(l *observation.Location) string { return areaName(l.County) }),
	"municipality":      loc(func(l *observation.Location) string { return areaName(l.Municipality) }),
	"locality":          loc(func(l *observation.Location) string { return l.Locality }),
	"decimalLatitude":   loc(func(l *observation.Location) string { return formatFloat(l.DecimalLatitude) }),
	"decimalLongitude":  loc(func(l *observation.Location) string { return formatFloat(l.DecimalLongitude) }),
	"geodeticDatum":     loc(func(l *observation.Location) string { return l.GeodeticDatum }),
	"coordinateUncertaintyInMeters": loc(func(l *observation.Location) string {
		return formatInt(l.CoordinateUncertaintyInMeters)
	}),
	"identifiedBy":   ident(func(i *observation.Identification) string { return i.IdentifiedBy }),
	"dateIdentified": ident(func(i *observation.Identification) string { return i.DateIdentified }),
	"identificationVerificationStatus": ident(func(i *observation.Identification) string {
		return i.VerificationStatus.Value
	}),
	"taxonID": taxon(func(t *observation.Taxon) string {
		if t.ID <= 0 {
			return ""
		}
		return "urn:lsid:dyntaxa.se:Taxon:" + strconv.Itoa(t.ID)
	}),
	"scientificName": taxon(func(t *observation.Taxon) string { return t.ScientificName }),
	"vernacularName": taxon(func(t *observation.Taxon) string { return t.VernacularName }),
	"taxonRank":      taxon(func(t *observation.Taxon) string { return t.TaxonRank }),
	"kingdom":        taxon(func(t *observation.Taxon) string { return t.Kingdom }),
}

func occ(f func(*observation.Occurrence) string) extractor {
	return func(o *observation.Observation) string {
		if o.Occurrence == nil {
			return ""
		}
		return f(o.Occurrence)
	}
}

func ev(f func(*observation.Event) string) extractor {
	return func(o *observation.Observation) string {
		if o.Event == nil {
			return ""
		}
		return f(o.Event)
	}
}

func loc(f func(*observation.Location) string) extractor {
	return func(o *observation.Observation) string {
		if o.Location == nil {
			return ""
		}
		return f(o.Location)
	}
}

func ident(f func(*observation.Identification) string) extractor {
	return func(o *observation.Observation) string {
		if o.Identification == nil {
			return ""
		}
		return f(o.Identification)
	}
}

func taxon(f func(*observation.Taxon) string) extractor {
	return func(o *observation.Observation) string {
		if o.Taxon == nil {
			return ""
		}
		return f(o.Taxon)
	}
}

// occurrenceRow returns the occurrence core values in OccurrenceFields order.
func occurrenceRow(o *observation.Observation) []string {
	row := make([]string, len(observation.OccurrenceFields))
	for i, f := range observation.OccurrenceFields {
		if ex, ok := occurrenceColumns[f.Name]; ok {
			row[i] = ex(o)
		}
	}
	return row
}

func measurementRows(o *observation.Observation) [][]string {
	rows := make([][]string, 0, len(o.MeasurementOrFacts))
	for _, m := range o.MeasurementOrFacts {
		rows = append(rows, []string{
			o.ID,
			m.MeasurementID,
			m.MeasurementType,
			m.MeasurementValue,
			m.MeasurementUnit,
			m.MeasurementDeterminedDate,
			m.MeasurementMethod,
			m.MeasurementRemarks,
		})
	}
	return rows
}

func multimediaRows(o *observation.Observation) [][]string {
	rows := make([][]string, 0, len(o.Media))
	for _, m := range o.Media {
		rows = append(rows, []string{
			o.ID,
			m.Type,
			m.Format,
			m.Identifier,
			m.References,
			m.Title,
			m.Created,
			m.Creator,
			m.License,
		})
	}
	return rows
}

// rowsFor returns the rows obs contributes to kind.
func rowsFor(kind PartKind, o *observation.Observation) [][]string {
	switch kind {
	case MeasurementOrFactPart:
		return measurementRows(o)
	case MultimediaPart:
		return multimediaRows(o)
	default:
		return [][]string{occurrenceRow(o)}
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatEventDate(e *observation.Event) string {
	if e.StartDate == nil {
		return ""
	}
	start := formatTime(e.StartDate)
	if e.EndDate == nil || e.EndDate.Equal(*e.StartDate) {
		return start
	}
	return start + "/" + formatTime(e.EndDate)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatInt(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func areaName(a *observation.Area) string {
	if a == nil {
		return ""
	}
	return a.Name
}

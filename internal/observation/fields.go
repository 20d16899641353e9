package observation

// FieldDescription describes one exported Darwin Core term.
type FieldDescription struct {
	ID            int
	Name          string
	Class         string
	DwcIdentifier string
	// Importance orders fields for data managers; lower is more important.
	Importance int
}

const dwcNS = "http://rs.tdwg.org/dwc/terms/"

func dwc(id int, name, class string, importance int) FieldDescription {
	return FieldDescription{
		ID:            id,
		Name:          name,
		Class:         class,
		DwcIdentifier: dwcNS + name,
		Importance:    importance,
	}
}

// OccurrenceFields is the ordered column list of the occurrence core file.
// occurrenceID is always first; it is the core id column.
var OccurrenceFields = []FieldDescription{
	dwc(1, "occurrenceID", "Occurrence", 1),
	dwc(2, "basisOfRecord", "Record-level", 2),
	{ID: 3, Name: "modified", Class: "Record-level", DwcIdentifier: "http://purl.org/dc/terms/modified", Importance: 3},
	{ID: 4, Name: "accessRights", Class: "Record-level", DwcIdentifier: "http://purl.org/dc/terms/accessRights", Importance: 2},
	dwc(5, "datasetName", "Record-level", 3),
	dwc(6, "informationWithheld", "Record-level", 3),
	dwc(7, "catalogNumber", "Occurrence", 3),
	dwc(8, "recordedBy", "Occurrence", 2),
	dwc(9, "individualCount", "Occurrence", 2),
	dwc(10, "organismQuantity", "Occurrence", 3),
	dwc(11, "sex", "Occurrence", 3),
	dwc(12, "lifeStage", "Occurrence", 3),
	dwc(13, "occurrenceStatus", "Occurrence", 2),
	dwc(14, "occurrenceRemarks", "Occurrence", 4),
	dwc(15, "eventID", "Event", 3),
	dwc(16, "eventDate", "Event", 1),
	dwc(17, "verbatimEventDate", "Event", 4),
	dwc(18, "samplingProtocol", "Event", 3),
	dwc(19, "habitat", "Event", 4),
	dwc(20, "locationID", "Location", 3),
	dwc(21, "country", "Location", 2),
	dwc(22, "countryCode", "Location", 2),
	dwc(23, "county", "Location", 2),
	dwc(24, "municipality", "Location", 2),
	dwc(25, "locality", "Location", 3),
	dwc(26, "decimalLatitude", "Location", 1),
	dwc(27, "decimalLongitude", "Location", 1),
	dwc(28, "geodeticDatum", "Location", 2),
	dwc(29, "coordinateUncertaintyInMeters", "Location", 1),
	dwc(30, "identifiedBy", "Identification", 3),
	dwc(31, "dateIdentified", "Identification", 4),
	dwc(32, "identificationVerificationStatus", "Identification", 3),
	dwc(33, "taxonID", "Taxon", 1),
	dwc(34, "scientificName", "Taxon", 1),
	dwc(35, "vernacularName", "Taxon", 2),
	dwc(36, "taxonRank", "Taxon", 2),
	dwc(37, "kingdom", "Taxon", 3),
}

// MeasurementOrFactFields is the ordered column list of the extendedMeasurementOrFact extension.
var MeasurementOrFactFields = []FieldDescription{
	dwc(101, "occurrenceID", "Occurrence", 1),
	dwc(102, "measurementID", "MeasurementOrFact", 2),
	dwc(103, "measurementType", "MeasurementOrFact", 1),
	dwc(104, "measurementValue", "MeasurementOrFact", 1),
	dwc(105, "measurementUnit", "MeasurementOrFact", 2),
	dwc(106, "measurementDeterminedDate", "MeasurementOrFact", 3),
	dwc(107, "measurementMethod", "MeasurementOrFact", 3),
	dwc(108, "measurementRemarks", "MeasurementOrFact", 4),
}

// MultimediaFields is the ordered column list of the multimedia extension.
var MultimediaFields = []FieldDescription{
	dwc(201, "occurrenceID", "Occurrence", 1),
	{ID: 202, Name: "type", Class: "Multimedia", DwcIdentifier: "http://purl.org/dc/terms/type", Importance: 2},
	{ID: 203, Name: "format", Class: "Multimedia", DwcIdentifier: "http://purl.org/dc/terms/format", Importance: 2},
	{ID: 204, Name: "identifier", Class: "Multimedia", DwcIdentifier: "http://purl.org/dc/terms/identifier", Importance: 1},
	{ID: 205, Name: "references", Class: "Multimedia", DwcIdentifier: "http://purl.org/dc/terms/references", Importance: 3},
	{ID: 206, Name: "title", Class: "Multimedia", DwcIdentifier: "http://purl.org/dc/terms/title", Importance: 3},
	{ID: 207, Name: "created", Class: "Multimedia", DwcIdentifier: "http://purl.org/dc/terms/created", Importance: 3},
	{ID: 208, Name: "creator", Class: "Multimedia", DwcIdentifier: "http://purl.org/dc/terms/creator", Importance: 3},
	{ID: 209, Name: "license", Class: "Multimedia", DwcIdentifier: "http://purl.org/dc/terms/license", Importance: 2},
}

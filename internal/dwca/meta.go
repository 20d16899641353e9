package dwca

import (
	"encoding/xml"
)

const (
	metaNamespace = "http://rs.tdwg.org/dwc/text/"

	occurrenceRowType  = "http://rs.tdwg.org/dwc/terms/Occurrence"
	measurementRowType = "http://rs.iobis.org/obis/terms/ExtendedMeasurementOrFact"
	multimediaRowType  = "http://rs.gbif.org/terms/1.0/Multimedia"
)

type metaArchive struct {
	XMLName    xml.Name   `xml:"archive"`
	Xmlns      string     `xml:"xmlns,attr"`
	Metadata   string     `xml:"metadata,attr"`
	Core       metaFile   `xml:"core"`
	Extensions []metaFile `xml:"extension"`
}

type metaFile struct {
	Encoding           string      `xml:"encoding,attr"`
	FieldsTerminatedBy string      `xml:"fieldsTerminatedBy,attr"`
	LinesTerminatedBy  string      `xml:"linesTerminatedBy,attr"`
	FieldsEnclosedBy   string      `xml:"fieldsEnclosedBy,attr"`
	IgnoreHeaderLines  int         `xml:"ignoreHeaderLines,attr"`
	RowType            string      `xml:"rowType,attr"`
	Location           string      `xml:"files>location"`
	ID                 *metaIndex  `xml:"id,omitempty"`
	CoreID             *metaIndex  `xml:"coreid,omitempty"`
	Fields             []metaField `xml:"field"`
}

type metaIndex struct {
	Index int `xml:"index,attr"`
}

type metaField struct {
	Index int    `xml:"index,attr"`
	Term  string `xml:"term,attr"`
}

func rowType(kind PartKind) string {
	switch kind {
	case MeasurementOrFactPart:
		return measurementRowType
	case MultimediaPart:
		return multimediaRowType
	default:
		return occurrenceRowType
	}
}

func newMetaFile(kind PartKind) metaFile {
	f := metaFile{
		Encoding:           "UTF-8",
		FieldsTerminatedBy: `\t`,
		LinesTerminatedBy:  `\n`,
		FieldsEnclosedBy:   "",
		IgnoreHeaderLines:  1,
		RowType:            rowType(kind),
		Location:           kind.FileName(),
	}
	if kind == OccurrencePart {
		f.ID = &metaIndex{Index: 0}
	} else {
		f.CoreID = &metaIndex{Index: 0}
	}
	for i, field := range kind.Fields() {
		f.Fields = append(f.Fields, metaField{Index: i, Term: field.DwcIdentifier})
	}
	return f
}

// MetaXML describes the core file and the extensions present in the archive.
func MetaXML(extensions []PartKind) ([]byte, error) {
	m := metaArchive{
		Xmlns:    metaNamespace,
		Metadata: "eml.xml",
		Core:     newMetaFile(OccurrencePart),
	}
	for _, k := range extensions {
		if k == OccurrencePart {
			continue
		}
		m.Extensions = append(m.Extensions, newMetaFile(k))
	}

	out, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

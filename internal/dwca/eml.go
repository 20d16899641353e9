package dwca

import (
	"context"
	"encoding/xml"
	"regexp"
	"time"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// EmlSource supplies the dataset metadata document of a provider.
type EmlSource interface {
	Eml(ctx context.Context, provider *observation.DataProvider) (*Eml, error)
}

// Eml is the subset of EML 2.1.1 the archives carry.
type Eml struct {
	XMLName   xml.Name   `xml:"eml:eml"`
	XmlnsEml  string     `xml:"xmlns:eml,attr"`
	PackageID string     `xml:"packageId,attr"`
	System    string     `xml:"system,attr"`
	Scope     string     `xml:"scope,attr"`
	Lang      string     `xml:"xml:lang,attr"`
	Dataset   EmlDataset `xml:"dataset"`
}

type EmlDataset struct {
	AlternateIdentifier string       `xml:"alternateIdentifier"`
	Title               string       `xml:"title"`
	Creator             EmlParty     `xml:"creator"`
	PubDate             string       `xml:"pubDate"`
	Language            string       `xml:"language"`
	Abstract            *EmlAbstract `xml:"abstract,omitempty"`
	Contact             EmlParty     `xml:"contact"`
}

type EmlParty struct {
	OrganizationName      string `xml:"organizationName,omitempty"`
	ElectronicMailAddress string `xml:"electronicMailAddress,omitempty"`
}

type EmlAbstract struct {
	Para string `xml:"para"`
}

// ProviderEml builds metadata from the provider registry entry.
type ProviderEml struct{}

func (ProviderEml) Eml(_ context.Context, p *observation.DataProvider) (*Eml, error) {
	party := EmlParty{OrganizationName: p.Organization, ElectronicMailAddress: p.ContactEmail}
	e := &Eml{
		XmlnsEml:  "eml://ecoinformatics.org/eml-2.1.1",
		PackageID: p.Identifier,
		System:    "http://gbif.org",
		Scope:     "system",
		Lang:      "eng",
		Dataset: EmlDataset{
			AlternateIdentifier: p.Identifier,
			Title:               p.Name,
			Creator:             party,
			Language:            "eng",
			Contact:             party,
		},
	}
	if p.Description != "" {
		e.Dataset.Abstract = &EmlAbstract{Para: p.Description}
	}
	return e, nil
}

// allProvidersEml describes the combined archive.
func allProvidersEml(identifier string) *Eml {
	e, _ := ProviderEml{}.Eml(context.Background(), &observation.DataProvider{
		Identifier:  identifier,
		Name:        "All data providers",
		Description: "Public observations from all data providers.",
	})
	return e
}

// EmlXML renders e with pubDate set to the day of now. e is not modified.
func EmlXML(e *Eml, now time.Time) ([]byte, error) {
	doc := *e
	doc.Dataset.PubDate = now.UTC().Format(time.DateOnly)

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

var pubDatePattern = regexp.MustCompile(`(?s)<pubDate>.*?</pubDate>`)

// stripPubDate removes the only part of eml.xml that changes between
// otherwise identical archives.
func stripPubDate(b []byte) []byte {
	return pubDatePattern.ReplaceAll(b, nil)
}

package dwca

import (
	"encoding/xml"
	"time"
)

// ProcessInfo summarizes the processing run that produced an archive.
type ProcessInfo struct {
	XMLName   xml.Name          `xml:"processInfo"`
	ID        string            `xml:"id,attr"`
	Start     time.Time         `xml:"start"`
	End       time.Time         `xml:"end"`
	Status    string            `xml:"status"`
	Providers []ProviderSummary `xml:"providers>provider"`
}

// ProviderSummary is one provider's row in ProcessInfo.
type ProviderSummary struct {
	Identifier     string    `xml:"identifier,attr"`
	Status         string    `xml:"status"`
	PublicCount    int       `xml:"publicCount"`
	ProtectedCount int       `xml:"protectedCount"`
	InvalidCount   int       `xml:"invalidCount"`
	Start          time.Time `xml:"start"`
	End            time.Time `xml:"end"`
}

// forProvider returns a copy restricted to identifier.
func (p *ProcessInfo) forProvider(identifier string) *ProcessInfo {
	c := *p
	c.Providers = nil
	for _, s := range p.Providers {
		if s.Identifier == identifier {
			c.Providers = append(c.Providers, s)
		}
	}
	return &c
}

func processInfoXML(p *ProcessInfo) ([]byte, error) {
	out, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

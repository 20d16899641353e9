package observation

import (
	"fmt"
	"strings"
)

// DataProviderType selects the mapper used for a provider's verbatim records.
type DataProviderType int

const (
	UnknownProvider DataProviderType = iota
	DwcaProvider
	ArtportalenProvider
	ClamPortalProvider
	KulProvider
	MvmProvider
	NorsProvider
	SersProvider
	SharkProvider
	VirtualHerbariumProvider
	FishDataProvider
)

var providerTypeNames = map[DataProviderType]string{
	DwcaProvider:             "Dwca",
	ArtportalenProvider:      "Artportalen",
	ClamPortalProvider:       "ClamPortal",
	KulProvider:              "Kul",
	MvmProvider:              "Mvm",
	NorsProvider:             "Nors",
	SersProvider:             "Sers",
	SharkProvider:            "Shark",
	VirtualHerbariumProvider: "VirtualHerbarium",
	FishDataProvider:         "FishData",
}

func (t DataProviderType) String() string {
	if name, ok := providerTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseDataProviderType parses a provider type name, ignoring case.
func ParseDataProviderType(s string) (DataProviderType, error) {
	for t, name := range providerTypeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return UnknownProvider, fmt.Errorf("unknown data provider type %q", s)
}

// UnmarshalYAML lets provider catalogs name the type as a string.
func (t *DataProviderType) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDataProviderType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DataProvider identifies a source system.
//
// Providers are shared read-mostly for the whole run. LatestUploadedFileHash
// is the only field written after startup, once per successful publish.
type DataProvider struct {
	ID          int              `yaml:"id"`
	Identifier  string           `yaml:"identifier"`
	Name        string           `yaml:"name"`
	Type        DataProviderType `yaml:"type"`
	Enabled     bool             `yaml:"enabled"`
	NoOfThreads int              `yaml:"noOfThreads"`
	BatchSize   int              `yaml:"batchSize"`

	// Eml fields populate the dataset metadata document of the provider archive.
	Organization string `yaml:"organization"`
	ContactEmail string `yaml:"contactEmail"`
	Description  string `yaml:"description"`

	LatestUploadedFileHash string `yaml:"-"`
}

func (p *DataProvider) String() string {
	return fmt.Sprintf("%s (%d)", p.Identifier, p.ID)
}

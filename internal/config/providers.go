package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// providerCatalog is the layout of the providers file:
//
//	providers:
//	  - id: 1
//	    identifier: artportalen
//	    name: Artportalen
//	    type: Artportalen
//	    enabled: true
//	    noOfThreads: 8
type providerCatalog struct {
	Providers []*observation.DataProvider `yaml:"providers"`
}

// LoadProviders reads the provider catalog at path.
func LoadProviders(path string) ([]*observation.DataProvider, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider catalog: %w", err)
	}
	return ParseProviders(b)
}

// ParseProviders decodes and checks a provider catalog. Ids and identifiers
// must be unique, and every provider needs a known type.
func ParseProviders(b []byte) ([]*observation.DataProvider, error) {
	var cat providerCatalog
	if err := yaml.UnmarshalStrict(b, &cat); err != nil {
		return nil, fmt.Errorf("parse provider catalog: %w", err)
	}

	var errs []string
	ids := make(map[int]bool)
	identifiers := make(map[string]bool)
	for i, p := range cat.Providers {
		if p == nil {
			errs = append(errs, fmt.Sprintf("provider #%d is empty", i+1))
			continue
		}
		p.Identifier = strings.TrimSpace(p.Identifier)
		switch {
		case p.ID <= 0:
			errs = append(errs, fmt.Sprintf("provider #%d: id must be positive", i+1))
		case ids[p.ID]:
			errs = append(errs, fmt.Sprintf("provider #%d: duplicate id %d", i+1, p.ID))
		}
		switch {
		case p.Identifier == "":
			errs = append(errs, fmt.Sprintf("provider #%d: identifier is required", i+1))
		case identifiers[strings.ToLower(p.Identifier)]:
			errs = append(errs, fmt.Sprintf("provider #%d: duplicate identifier %q", i+1, p.Identifier))
		}
		if p.Type == observation.UnknownProvider {
			errs = append(errs, fmt.Sprintf("provider %q: type is required", p.Identifier))
		}
		if p.NoOfThreads < 0 || p.BatchSize < 0 {
			errs = append(errs, fmt.Sprintf("provider %q: noOfThreads and batchSize must be non-negative", p.Identifier))
		}
		ids[p.ID] = true
		identifiers[strings.ToLower(p.Identifier)] = true
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid provider catalog:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return cat.Providers, nil
}

// EnabledProviders filters the catalog to providers that take part in cycles.
func EnabledProviders(all []*observation.DataProvider) []*observation.DataProvider {
	out := make([]*observation.DataProvider, 0, len(all))
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Package area resolves administrative areas (county, municipality, province
// and parish) from a GeoJSON catalog by point-in-polygon lookup.
package area

import (
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// Kind is the administrative level of an area.
type Kind string

const (
	County       Kind = "County"
	Municipality Kind = "Municipality"
	Province     Kind = "Province"
	Parish       Kind = "Parish"
)

var kinds = map[string]Kind{
	"county":       County,
	"municipality": Municipality,
	"province":     Province,
	"parish":       Parish,
}

// area is one polygon of the catalog with its bound cached for a cheap
// rejection test.
type area struct {
	kind  Kind
	id    string
	name  string
	geom  orb.Geometry
	bound orb.Bound
}

func (a *area) contains(p orb.Point) bool {
	if !a.bound.Contains(p) {
		return false
	}
	switch g := a.geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	}
	return false
}

// Catalog holds areas in WGS84 lon/lat. It is read-only after loading and
// safe for concurrent use.
type Catalog struct {
	areas map[Kind][]*area
}

// LoadCatalog reads a GeoJSON feature collection from path.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read area catalog: %w", err)
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes a feature collection. Every feature needs a "type"
// property naming its level, plus "featureId" and "name". Features with
// non-polygon geometry are rejected.
func ParseCatalog(b []byte) (*Catalog, error) {
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("parse area catalog: %w", err)
	}

	c := &Catalog{areas: make(map[Kind][]*area)}
	for i, f := range fc.Features {
		kind, ok := kinds[strings.ToLower(f.Properties.MustString("type", ""))]
		if !ok {
			return nil, fmt.Errorf("feature #%d: unknown area type %q", i+1, f.Properties.MustString("type", ""))
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("feature #%d: geometry must be a polygon, got %T", i+1, f.Geometry)
		}
		a := &area{
			kind:  kind,
			id:    featureID(f),
			name:  f.Properties.MustString("name", ""),
			geom:  f.Geometry,
			bound: f.Geometry.Bound(),
		}
		c.areas[kind] = append(c.areas[kind], a)
	}
	return c, nil
}

// featureID prefers the featureId property and falls back to the feature id.
func featureID(f *geojson.Feature) string {
	if id := f.Properties.MustString("featureId", ""); id != "" {
		return id
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return ""
}

// Len returns the number of areas of kind.
func (c *Catalog) Len(kind Kind) int {
	return len(c.areas[kind])
}

// Lookup returns the first area of kind containing p.
func (c *Catalog) Lookup(kind Kind, p orb.Point) (*observation.Area, bool) {
	for _, a := range c.areas[kind] {
		if a.contains(p) {
			return &observation.Area{FeatureID: a.id, Name: a.name}, true
		}
	}
	return nil, false
}

// Enricher fills observation areas from a Catalog.
type Enricher struct {
	catalog *Catalog
}

func NewEnricher(c *Catalog) *Enricher {
	return &Enricher{catalog: c}
}

// Enrich sets every area level the observation's point falls in. Levels
// without a match are left as they were.
func (e *Enricher) Enrich(obs *observation.Observation) {
	if obs == nil || obs.Location == nil {
		return
	}
	p, ok := obs.Location.Point()
	if !ok {
		return
	}
	loc := obs.Location
	if a, ok := e.catalog.Lookup(County, p); ok {
		loc.County = a
	}
	if a, ok := e.catalog.Lookup(Municipality, p); ok {
		loc.Municipality = a
	}
	if a, ok := e.catalog.Lookup(Province, p); ok {
		loc.Province = a
	}
	if a, ok := e.catalog.Lookup(Parish, p); ok {
		loc.Parish = a
	}
}

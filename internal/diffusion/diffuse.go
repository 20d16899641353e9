// Package diffusion coarsens the location of sensitive observations.
//
// Diffuse snaps a point to the representative point of a grid cell sized by
// protection level, so every point inside one cell maps to the same output.
// The same pass scrubs locality text, reporter identity and date precision.
// All functions here are pure and safe for concurrent use.
package diffusion

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// BufferSegments is the number of vertices used to approximate a circle.
const BufferSegments = 32

// Diffuse returns a diffused copy of obs for the given protection level.
// obs itself is not modified.
func Diffuse(obs *observation.Observation, level int) *observation.Observation {
	out := obs.Clone()
	if out == nil {
		return nil
	}
	grid := GridFor(level)

	if out.Location != nil {
		diffuseLocation(out.Location, grid, out.Taxon)
	}
	scrubIdentity(out)
	truncateDates(out)

	out.AccessRights = observation.FreeUsage
	out.DiffusionStatus = observation.DiffusedBySystem
	return out
}

// DiffuseProtected diffuses obs using its own effective protection level.
func DiffuseProtected(obs *observation.Observation) *observation.Observation {
	return Diffuse(obs, obs.ProtectionLevel())
}

func diffuseLocation(loc *observation.Location, grid Grid, taxon *observation.Taxon) {
	if lat, lon, ok := latLon(loc); ok {
		x, y := ToSweref99TM(lat, lon)
		sx, sy := grid.Snap(x), grid.Snap(y)
		nlat, nlon := FromSweref99TM(sx, sy)

		loc.DecimalLatitude = observation.Float(nlat)
		loc.DecimalLongitude = observation.Float(nlon)
		loc.Sweref99TmX = observation.Float(sx)
		loc.Sweref99TmY = observation.Float(sy)
		loc.GeodeticDatum = "EPSG:4326"

		radius := grid.Mod
		if loc.CoordinateUncertaintyInMeters != nil && *loc.CoordinateUncertaintyInMeters > radius {
			radius = *loc.CoordinateUncertaintyInMeters
		}
		loc.CoordinateUncertaintyInMeters = observation.Int(radius)

		center := orb.Point{nlon, nlat}
		loc.PointWithBuffer = BufferCircle(center, float64(radius), BufferSegments)
		loc.PointWithDisturbanceBuffer = nil
		if taxon != nil && taxon.DisturbanceRadius != nil && *taxon.DisturbanceRadius > 0 {
			loc.PointWithDisturbanceBuffer = BufferCircle(center, float64(*taxon.DisturbanceRadius), BufferSegments)
		}
	} else {
		loc.Sweref99TmX = nil
		loc.Sweref99TmY = nil
		loc.PointWithBuffer = nil
		loc.PointWithDisturbanceBuffer = nil
	}

	loc.County = nil
	loc.Municipality = nil
	loc.Parish = nil
	loc.Province = nil
	loc.Locality = ""
	loc.LocationID = ""
	loc.LocationRemarks = ""
	loc.VerbatimLocality = ""
	loc.VerbatimLatitude = ""
	loc.VerbatimLongitude = ""
	loc.VerbatimCoordinates = ""
	loc.VerbatimCoordinateSystem = ""
	loc.FootprintWKT = ""
}

func latLon(loc *observation.Location) (float64, float64, bool) {
	if !loc.HasCoordinates() {
		return 0, 0, false
	}
	lat, lon := *loc.DecimalLatitude, *loc.DecimalLongitude
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

func scrubIdentity(obs *observation.Observation) {
	if oc := obs.Occurrence; oc != nil {
		oc.RecordedBy = ""
		oc.ReportedBy = ""
		oc.ReportedByUserID = ""
		oc.URL = ""
	}
	if id := obs.Identification; id != nil {
		id.IdentifiedBy = ""
	}
	if pi := obs.ProviderInternal; pi != nil {
		pi.SiteID = ""
		pi.ReportedByUserID = ""
		pi.ExternalIDs = nil
	}
}

func truncateDates(obs *observation.Observation) {
	obs.Modified = firstOfMonth(obs.Modified)
	if ev := obs.Event; ev != nil {
		ev.StartDate = firstOfMonth(ev.StartDate)
		ev.EndDate = firstOfMonth(ev.EndDate)
		ev.VerbatimEventDate = ""
	}
	if oc := obs.Occurrence; oc != nil {
		oc.ReportedDate = firstOfMonth(oc.ReportedDate)
	}
}

func firstOfMonth(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return &v
}

// BufferCircle approximates a circle of radiusMeters around a lon/lat point.
// The ring is closed and wound counter-clockwise.
func BufferCircle(center orb.Point, radiusMeters float64, segments int) orb.Polygon {
	if segments < 4 {
		segments = 4
	}
	ring := make(orb.Ring, 0, segments+1)
	step := 360.0 / float64(segments)
	for i := 0; i < segments; i++ {
		// Bearings run clockwise from north; walk them backwards for a CCW ring.
		bearing := 360 - float64(i)*step
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radiusMeters))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

package diffusion

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

func TestGridFor(t *testing.T) {
	tests := []struct {
		level int
		want  Grid
	}{
		{1, Grid{1, 0}},
		{2, Grid{1000, 555}},
		{3, Grid{5000, 2505}},
		{4, Grid{25000, 12505}},
		{5, Grid{50000, 25005}},
		{6, Grid{1, 0}},
		{0, Grid{1, 0}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GridFor(tt.level), "level %d", tt.level)
	}
}

func TestGridSnap(t *testing.T) {
	g := GridFor(3)
	assert.Equal(t, 6_502_505.0, g.Snap(6_501_234.7))
	assert.Equal(t, 6_502_505.0, g.Snap(6_500_000))
	assert.Equal(t, 6_502_505.0, g.Snap(6_504_999.9))
	assert.Equal(t, 6_507_505.0, g.Snap(6_505_000))
	// negative values keep a non-negative remainder
	assert.Equal(t, -2495.0, g.Snap(-1.5))

	assert.Equal(t, 12.0, GridFor(1).Snap(12.9))
}

func TestProjection_CentralMeridian(t *testing.T) {
	x, y := ToSweref99TM(0, 15)
	assert.InDelta(t, 500000, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	x, y = ToSweref99TM(58.6, 15)
	assert.InDelta(t, 500000, x, 1e-6)
	assert.InDelta(t, 6_494_000, y, 50_000)
}

func TestProjection_RoundTrip(t *testing.T) {
	points := [][2]float64{
		{55.6, 13.0},
		{59.33, 18.07},
		{63.8, 20.26},
		{67.85, 20.22},
		{57.7, 11.97},
	}
	for _, p := range points {
		x, y := ToSweref99TM(p[0], p[1])
		lat, lon := FromSweref99TM(x, y)
		assert.InDelta(t, p[0], lat, 1e-7)
		assert.InDelta(t, p[1], lon, 1e-7)
	}
}

func sample(lat, lon float64) *observation.Observation {
	start := time.Date(2023, 6, 17, 8, 30, 0, 0, time.UTC)
	return &observation.Observation{
		ID:           "urn:lsid:test:obs:1",
		AccessRights: observation.NotForPublicUse,
		Modified:     observation.Time(start.Add(48 * time.Hour)),
		Event: &observation.Event{
			StartDate:         observation.Time(start),
			EndDate:           observation.Time(start.Add(time.Hour)),
			VerbatimEventDate: "2023-06-17 08:30",
		},
		Location: &observation.Location{
			DecimalLatitude:               observation.Float(lat),
			DecimalLongitude:              observation.Float(lon),
			CoordinateUncertaintyInMeters: observation.Int(25),
			Locality:                      "Norra udden",
			LocationID:                    "site-77",
			VerbatimLatitude:              "59 20 00N",
			County:                        &observation.Area{FeatureID: "1", Name: "Stockholm"},
			Municipality:                  &observation.Area{FeatureID: "180", Name: "Stockholm"},
		},
		Occurrence: &observation.Occurrence{
			RecordedBy:      "Anna Andersson",
			ReportedBy:      "Anna Andersson",
			ReportedDate:    observation.Time(start),
			ProtectionLevel: 3,
		},
		Identification:   &observation.Identification{IdentifiedBy: "Anna Andersson"},
		Taxon:            &observation.Taxon{ID: 100},
		ProviderInternal: &observation.ProviderInternal{SiteID: "77", ExternalIDs: map[string]string{"site": "77"}},
	}
}

func TestDiffuse_Deterministic(t *testing.T) {
	coords := [][2]float64{{59.3293, 18.0686}, {55.605, 13.0038}, {65.58, 22.15}, {57.0, 16.5}}
	for level := 2; level <= 5; level++ {
		grid := GridFor(level)
		for _, c := range coords {
			obs := sample(c[0], c[1])
			a := Diffuse(obs, level)
			b := Diffuse(obs, level)
			require.Equal(t, a, b, "level %d", level)

			assert.True(t, grid.OnGrid(*a.Location.Sweref99TmX), "x off grid at level %d", level)
			assert.True(t, grid.OnGrid(*a.Location.Sweref99TmY), "y off grid at level %d", level)
		}
	}
}

func TestDiffuse_SameCellSameOutput(t *testing.T) {
	for level := 2; level <= 5; level++ {
		grid := GridFor(level)
		mod := float64(grid.Mod)
		baseX := 650 * 1000.0
		baseY := 6_550 * 1000.0
		// stay clear of the cell edges so projection round-off cannot cross them
		offsets := [][2]float64{{0.1, 0.1}, {0.5, 0.3}, {0.9, 0.85}}

		var first orb.Point
		for i, o := range offsets {
			lat, lon := FromSweref99TM(baseX+o[0]*mod, baseY+o[1]*mod)
			d := Diffuse(sample(lat, lon), level)
			p := orb.Point{*d.Location.DecimalLongitude, *d.Location.DecimalLatitude}
			if i == 0 {
				first = p
				continue
			}
			assert.Equal(t, first, p, "level %d offset %v", level, o)
		}
	}
}

func TestDiffuse_UncertaintyFloor(t *testing.T) {
	tests := []struct {
		name        string
		uncertainty *int
		level       int
		want        int
	}{
		{"small uncertainty raised", observation.Int(10), 3, 5000},
		{"missing uncertainty", nil, 4, 25000},
		{"larger uncertainty kept", observation.Int(20000), 3, 20000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := sample(59.3, 18.0)
			obs.Location.CoordinateUncertaintyInMeters = tt.uncertainty

			d := Diffuse(obs, tt.level)
			require.NotNil(t, d.Location.CoordinateUncertaintyInMeters)
			assert.Equal(t, tt.want, *d.Location.CoordinateUncertaintyInMeters)
			assert.GreaterOrEqual(t, *d.Location.CoordinateUncertaintyInMeters, GridFor(tt.level).Mod)

			require.Len(t, d.Location.PointWithBuffer, 1)
			center := orb.Point{*d.Location.DecimalLongitude, *d.Location.DecimalLatitude}
			for _, p := range d.Location.PointWithBuffer[0] {
				assert.InDelta(t, float64(tt.want), geo.Distance(center, p), 1)
			}
		})
	}
}

func TestDiffuse_ScrubsAndLeavesOriginal(t *testing.T) {
	obs := sample(59.3293, 18.0686)
	d := Diffuse(obs, 3)

	assert.Empty(t, d.Location.Locality)
	assert.Empty(t, d.Location.LocationID)
	assert.Empty(t, d.Location.VerbatimLatitude)
	assert.Nil(t, d.Location.County)
	assert.Nil(t, d.Location.Municipality)
	assert.Empty(t, d.Occurrence.RecordedBy)
	assert.Empty(t, d.Occurrence.ReportedBy)
	assert.Empty(t, d.Identification.IdentifiedBy)
	assert.Empty(t, d.ProviderInternal.SiteID)
	assert.Nil(t, d.ProviderInternal.ExternalIDs)
	assert.Empty(t, d.Event.VerbatimEventDate)

	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), *d.Event.StartDate)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), *d.Event.EndDate)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), *d.Occurrence.ReportedDate)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), *d.Modified)

	assert.Equal(t, observation.FreeUsage, d.AccessRights)
	assert.Equal(t, observation.DiffusedBySystem, d.DiffusionStatus)

	// original untouched
	assert.Equal(t, "Norra udden", obs.Location.Locality)
	assert.Equal(t, 59.3293, *obs.Location.DecimalLatitude)
	assert.Equal(t, "Anna Andersson", obs.Occurrence.RecordedBy)
	assert.Equal(t, observation.NotForPublicUse, obs.AccessRights)
	assert.Equal(t, observation.NotDiffused, obs.DiffusionStatus)
	assert.Equal(t, 17, obs.Event.StartDate.Day())
}

func TestDiffuse_DisturbanceBuffer(t *testing.T) {
	obs := sample(59.3, 18.0)
	d := Diffuse(obs, 3)
	assert.Nil(t, d.Location.PointWithDisturbanceBuffer)

	obs.Taxon.DisturbanceRadius = observation.Int(1500)
	d = Diffuse(obs, 3)
	require.Len(t, d.Location.PointWithDisturbanceBuffer, 1)
	center := orb.Point{*d.Location.DecimalLongitude, *d.Location.DecimalLatitude}
	assert.InDelta(t, 1500, geo.Distance(center, d.Location.PointWithDisturbanceBuffer[0][0]), 1)
}

func TestDiffuse_WithoutCoordinates(t *testing.T) {
	obs := sample(0, 0)
	obs.Location.DecimalLatitude = nil
	obs.Location.DecimalLongitude = nil

	d := Diffuse(obs, 4)
	assert.Nil(t, d.Location.DecimalLatitude)
	assert.Nil(t, d.Location.PointWithBuffer)
	assert.Empty(t, d.Location.Locality)
	assert.Empty(t, d.Occurrence.RecordedBy)
	assert.Equal(t, observation.DiffusedBySystem, d.DiffusionStatus)
}

func TestBufferCircle_Closed(t *testing.T) {
	poly := BufferCircle(orb.Point{18, 59}, 1000, 16)
	require.Len(t, poly, 1)
	ring := poly[0]
	assert.Len(t, ring, 17)
	assert.True(t, ring.Closed())
	assert.Equal(t, orb.CCW, ring.Orientation())
}

package observation

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestProtectionLevel(t *testing.T) {
	tests := []struct {
		name       string
		occurrence int
		taxon      int
		want       int
	}{
		{"defaults to one", 0, 0, 1},
		{"occurrence wins", 4, 1, 4},
		{"taxon wins", 1, 3, 3},
		{"clamped", 9, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &Observation{
				Occurrence: &Occurrence{ProtectionLevel: tt.occurrence},
				Taxon:      &Taxon{ProtectionLevel: tt.taxon},
			}
			assert.Equal(t, tt.want, obs.ProtectionLevel())
			assert.Equal(t, tt.want > 2, obs.IsProtected())
		})
	}
}

func TestProtectionLevel_NilBlocks(t *testing.T) {
	obs := &Observation{}
	assert.Equal(t, 1, obs.ProtectionLevel())
	assert.False(t, obs.IsProtected())
}

func TestClone_IsDeep(t *testing.T) {
	start := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)
	orig := &Observation{
		ID:    "urn:lsid:test:1",
		Event: &Event{StartDate: Time(start)},
		Location: &Location{
			DecimalLatitude:  Float(59.3),
			DecimalLongitude: Float(18.0),
			County:           &Area{FeatureID: "1", Name: "Stockholm"},
			PointWithBuffer:  orb.Polygon{{{18, 59}, {18.1, 59}, {18, 59.1}, {18, 59}}},
		},
		Taxon:            &Taxon{ID: 100, DisturbanceRadius: Int(500)},
		Occurrence:       &Occurrence{RecordedBy: "A. Person"},
		ProviderInternal: &ProviderInternal{ExternalIDs: map[string]string{"site": "42"}},
	}

	c := orig.Clone()
	require.NotNil(t, c)

	*c.Location.DecimalLatitude = 0
	c.Location.County.Name = "changed"
	c.Location.PointWithBuffer[0][0] = orb.Point{0, 0}
	*c.Event.StartDate = time.Time{}
	*c.Taxon.DisturbanceRadius = 1
	c.Occurrence.RecordedBy = ""
	c.ProviderInternal.ExternalIDs["site"] = "x"

	assert.Equal(t, 59.3, *orig.Location.DecimalLatitude)
	assert.Equal(t, "Stockholm", orig.Location.County.Name)
	assert.Equal(t, orb.Point{18, 59}, orig.Location.PointWithBuffer[0][0])
	assert.Equal(t, start, *orig.Event.StartDate)
	assert.Equal(t, 500, *orig.Taxon.DisturbanceRadius)
	assert.Equal(t, "A. Person", orig.Occurrence.RecordedBy)
	assert.Equal(t, "42", orig.ProviderInternal.ExternalIDs["site"])
}

func TestParseDataProviderType(t *testing.T) {
	got, err := ParseDataProviderType(" artportalen ")
	require.NoError(t, err)
	assert.Equal(t, ArtportalenProvider, got)
	assert.Equal(t, "Artportalen", got.String())

	_, err = ParseDataProviderType("nope")
	assert.Error(t, err)
}

func TestDataProvider_UnmarshalYAML(t *testing.T) {
	var p DataProvider
	err := yaml.Unmarshal([]byte("id: 3\nidentifier: shark\ntype: Shark\nenabled: true\n"), &p)
	require.NoError(t, err)
	assert.Equal(t, 3, p.ID)
	assert.Equal(t, SharkProvider, p.Type)
	assert.True(t, p.Enabled)

	err = yaml.Unmarshal([]byte("type: Bogus\n"), &p)
	assert.Error(t, err)
}

func TestVocabularyValue(t *testing.T) {
	assert.True(t, VocabularyValue{ID: CustomValueID, Value: "odd"}.IsCustom())
	assert.False(t, FreeUsage.IsCustom())
	assert.True(t, VocabularyValue{}.IsZero())
}

func TestOccurrenceFields_CoreIDFirst(t *testing.T) {
	require.NotEmpty(t, OccurrenceFields)
	assert.Equal(t, "occurrenceID", OccurrenceFields[0].Name)

	seen := map[string]bool{}
	for _, f := range OccurrenceFields {
		assert.False(t, seen[f.Name], "duplicate field %s", f.Name)
		seen[f.Name] = true
		assert.NotEmpty(t, f.DwcIdentifier)
	}
}

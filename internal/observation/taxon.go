package observation

// Taxon is a read-only entry of the taxonomy snapshot.
type Taxon struct {
	ID              int
	ScientificName  string
	VernacularName  string
	TaxonRank       string
	Kingdom         string
	RedlistCategory string
	ProtectedByLaw  bool
	ProtectionLevel int

	// DisturbanceRadius is the distance in meters within which the species is
	// sensitive to disturbance. Nil when unknown.
	DisturbanceRadius *int
}

// Protection levels. Levels above PublicProtectionLevel are sensitive.
const (
	MinProtectionLevel    = 1
	PublicProtectionLevel = 2
	MaxProtectionLevel    = 5
)

// ClampProtectionLevel limits level to the 1..5 range.
func ClampProtectionLevel(level int) int {
	if level < MinProtectionLevel {
		return MinProtectionLevel
	}
	if level > MaxProtectionLevel {
		return MaxProtectionLevel
	}
	return level
}

// IsSensitiveLevel reports whether observations at level must be diffused
// before they may appear in public output.
func IsSensitiveLevel(level int) bool {
	return level > PublicProtectionLevel
}

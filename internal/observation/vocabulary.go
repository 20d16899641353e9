package observation

// VocabularyID names a controlled vocabulary.
type VocabularyID int

const (
	VocabularyBasisOfRecord VocabularyID = iota + 1
	VocabularySex
	VocabularyLifeStage
	VocabularyActivity
	VocabularyOccurrenceStatus
	VocabularyAccessRights
	VocabularyVerificationStatus
	VocabularyCounty
	VocabularyMunicipality
	VocabularyProvince
	VocabularyParish
)

var vocabularyNames = map[VocabularyID]string{
	VocabularyBasisOfRecord:      "BasisOfRecord",
	VocabularySex:                "Sex",
	VocabularyLifeStage:          "LifeStage",
	VocabularyActivity:           "Activity",
	VocabularyOccurrenceStatus:   "OccurrenceStatus",
	VocabularyAccessRights:       "AccessRights",
	VocabularyVerificationStatus: "VerificationStatus",
	VocabularyCounty:             "County",
	VocabularyMunicipality:       "Municipality",
	VocabularyProvince:           "Province",
	VocabularyParish:             "Parish",
}

func (v VocabularyID) String() string {
	if name, ok := vocabularyNames[v]; ok {
		return name
	}
	return "Unknown"
}

// CustomValueID marks a value whose verbatim text had no vocabulary match.
const CustomValueID = -1

// VocabularyValue is either a mapped vocabulary id or custom verbatim text.
type VocabularyValue struct {
	ID    int
	Value string
}

// IsCustom reports whether the value did not resolve to a vocabulary entry.
func (v VocabularyValue) IsCustom() bool {
	return v.ID == CustomValueID
}

// IsZero reports whether no value was provided at all.
func (v VocabularyValue) IsZero() bool {
	return v.ID == 0 && v.Value == ""
}

// Access rights vocabulary ids.
const (
	AccessRightsFreeUsage       = 0
	AccessRightsNotForPublicUse = 1
)

// FreeUsage is the access rights value set on diffused public copies.
var FreeUsage = VocabularyValue{ID: AccessRightsFreeUsage, Value: "Free usage"}

// NotForPublicUse is the access rights value of protected records.
var NotForPublicUse = VocabularyValue{ID: AccessRightsNotForPublicUse, Value: "Not for public usage"}

// VocabularyEntry is one row of a vocabulary snapshot.
type VocabularyEntry struct {
	ID    int
	Value string
	// Synonyms are additional verbatim spellings that map to this entry.
	Synonyms []string
}

// Vocabulary is a named list of entries.
type Vocabulary struct {
	ID      VocabularyID
	Entries []VocabularyEntry
}

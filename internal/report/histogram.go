package report

import (
	"sort"

	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/verbatim"
)

type vocabularyField struct {
	vocab observation.VocabularyID
	term  string
	value func(o *observation.Observation) observation.VocabularyValue
}

func occurrenceValue(f func(*observation.Occurrence) observation.VocabularyValue) func(*observation.Observation) observation.VocabularyValue {
	return func(o *observation.Observation) observation.VocabularyValue {
		if o.Occurrence == nil {
			return observation.VocabularyValue{}
		}
		return f(o.Occurrence)
	}
}

var vocabularyFields = []vocabularyField{
	{observation.VocabularyBasisOfRecord, "basisOfRecord", func(o *observation.Observation) observation.VocabularyValue {
		return o.BasisOfRecord
	}},
	{observation.VocabularyAccessRights, "accessRights", func(o *observation.Observation) observation.VocabularyValue {
		return o.AccessRights
	}},
	{observation.VocabularySex, "sex", occurrenceValue(func(oc *observation.Occurrence) observation.VocabularyValue { return oc.Sex })},
	{observation.VocabularyLifeStage, "lifeStage", occurrenceValue(func(oc *observation.Occurrence) observation.VocabularyValue { return oc.LifeStage })},
	{observation.VocabularyActivity, "behavior", occurrenceValue(func(oc *observation.Occurrence) observation.VocabularyValue { return oc.Activity })},
	{observation.VocabularyOccurrenceStatus, "occurrenceStatus", occurrenceValue(func(oc *observation.Occurrence) observation.VocabularyValue {
		return oc.OccurrenceStatus
	})},
	{observation.VocabularyVerificationStatus, "identificationVerificationStatus", func(o *observation.Observation) observation.VocabularyValue {
		if o.Identification == nil {
			return observation.VocabularyValue{}
		}
		return o.Identification.VerificationStatus
	}},
}

// verbatimKey returns the verbatim value of term, or a sentinel when it is
// absent or blank.
func verbatimKey(rec verbatim.Record, term string) string {
	v, ok := rec.Get(term)
	switch {
	case !ok:
		return NullValue
	case v == "":
		return EmptyValue
	default:
		return v
	}
}

type bucket struct {
	value    observation.VocabularyValue
	label    string
	count    int
	verbatim map[string]int
}

// histogram accumulates one vocabulary field. Each bucket keeps at most
// maxVerbatim distinct verbatim spellings; later spellings are dropped but
// still counted in the bucket total.
type histogram struct {
	field       vocabularyField
	maxVerbatim int
	buckets     map[observation.VocabularyValue]*bucket
}

func newHistogram(f vocabularyField, maxVerbatim int) *histogram {
	return &histogram{field: f, maxVerbatim: maxVerbatim, buckets: make(map[observation.VocabularyValue]*bucket)}
}

func (h *histogram) add(rec verbatim.Record, obs *observation.Observation) {
	raw := verbatimKey(rec, h.field.term)
	value := h.field.value(obs)

	label := value.Value
	if value.IsZero() {
		label = raw
		value = observation.VocabularyValue{ID: 0, Value: raw}
	}

	b, ok := h.buckets[value]
	if !ok {
		b = &bucket{value: value, label: label, verbatim: make(map[string]int)}
		h.buckets[value] = b
	}
	b.count++
	if _, seen := b.verbatim[raw]; seen || len(b.verbatim) < h.maxVerbatim {
		b.verbatim[raw]++
	}
}

func (h *histogram) result() VocabularyHistogram {
	out := VocabularyHistogram{
		Vocabulary: h.field.vocab.String(),
		Field:      h.field.term,
		Buckets:    make([]VocabularyBucket, 0, len(h.buckets)),
	}
	for _, b := range h.buckets {
		vb := VocabularyBucket{
			ID:       b.value.ID,
			Value:    b.label,
			Custom:   b.value.IsCustom(),
			Count:    b.count,
			Verbatim: make([]VerbatimCount, 0, len(b.verbatim)),
		}
		for v, n := range b.verbatim {
			vb.Verbatim = append(vb.Verbatim, VerbatimCount{Value: v, Count: n})
		}
		sort.Slice(vb.Verbatim, func(i, j int) bool {
			if vb.Verbatim[i].Count != vb.Verbatim[j].Count {
				return vb.Verbatim[i].Count > vb.Verbatim[j].Count
			}
			return vb.Verbatim[i].Value < vb.Verbatim[j].Value
		})
		out.Buckets = append(out.Buckets, vb)
	}
	sort.Slice(out.Buckets, func(i, j int) bool {
		if out.Buckets[i].Count != out.Buckets[j].Count {
			return out.Buckets[i].Count > out.Buckets[j].Count
		}
		return out.Buckets[i].Value < out.Buckets[j].Value
	})
	return out
}

package dwca

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/JonMunkholm/biopipe/internal/observation"
)

// PartKind is one data file of an archive.
type PartKind int

const (
	OccurrencePart PartKind = iota
	MeasurementOrFactPart
	MultimediaPart
)

// AllParts lists part kinds in archive order.
var AllParts = []PartKind{OccurrencePart, MeasurementOrFactPart, MultimediaPart}

// Name is the file name of the part without extension.
func (k PartKind) Name() string {
	switch k {
	case MeasurementOrFactPart:
		return "extendedMeasurementOrFact"
	case MultimediaPart:
		return "multimedia"
	default:
		return "occurrence"
	}
}

// FileName is the entry name of the part inside the archive.
func (k PartKind) FileName() string {
	return k.Name() + ".csv"
}

func (k PartKind) String() string { return k.Name() }

// Fields returns the column list of the part.
func (k PartKind) Fields() []observation.FieldDescription {
	switch k {
	case MeasurementOrFactPart:
		return observation.MeasurementOrFactFields
	case MultimediaPart:
		return observation.MultimediaFields
	default:
		return observation.OccurrenceFields
	}
}

// TempFolderName is the per-provider fragment folder inside the export folder.
func TempFolderName(identifier string) string {
	return "DwcaCreationTempFiles-" + identifier
}

// FragmentPath returns the fragment file of one part for one batch. An empty
// batch id yields the unsuffixed name.
func FragmentPath(exportFolder, identifier string, kind PartKind, batchID string) string {
	name := kind.Name()
	if batchID != "" {
		name = fmt.Sprintf("%s-%s", name, batchID)
	}
	return filepath.Join(exportFolder, TempFolderName(identifier), name+".csv")
}

// FilePartsInfo tracks the fragment files written for one provider during a
// publishing cycle. Each (batch id, part kind) pair maps to exactly one path.
//
// The paths map is only mutated by Coordinator under its lock.
type FilePartsInfo struct {
	Provider     *observation.DataProvider
	ExportFolder string
	paths        map[string]map[PartKind]string
}

func newFilePartsInfo(provider *observation.DataProvider, exportFolder string) *FilePartsInfo {
	return &FilePartsInfo{
		Provider:     provider,
		ExportFolder: exportFolder,
		paths:        make(map[string]map[PartKind]string),
	}
}

// Folder is the provider's temp folder.
func (f *FilePartsInfo) Folder() string {
	return filepath.Join(f.ExportFolder, TempFolderName(f.Provider.Identifier))
}

// pathsFor returns the part paths of batchID, creating them if absent.
func (f *FilePartsInfo) pathsFor(batchID string) map[PartKind]string {
	if p, ok := f.paths[batchID]; ok {
		return p
	}
	p := make(map[PartKind]string, len(AllParts))
	for _, k := range AllParts {
		p[k] = FragmentPath(f.ExportFolder, f.Provider.Identifier, k, batchID)
	}
	f.paths[batchID] = p
	return p
}

// BatchIDs returns the tracked batch ids in sorted order.
func (f *FilePartsInfo) BatchIDs() []string {
	ids := make([]string, 0, len(f.paths))
	for id := range f.paths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Fragments returns the fragment paths of kind in batch id order.
func (f *FilePartsInfo) Fragments(kind PartKind) []string {
	ids := f.BatchIDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.paths[id][kind])
	}
	return out
}

// snapshot copies the tracked paths so they can be read without the lock.
func (f *FilePartsInfo) snapshot() *FilePartsInfo {
	c := newFilePartsInfo(f.Provider, f.ExportFolder)
	for id, parts := range f.paths {
		m := make(map[PartKind]string, len(parts))
		for k, v := range parts {
			m[k] = v
		}
		c.paths[id] = m
	}
	return c
}

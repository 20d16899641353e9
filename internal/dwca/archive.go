package dwca

import (
	"archive/zip"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// archiveSource is what a single archive is assembled from: the fragments of
// one or more providers plus the metadata documents.
type archiveSource struct {
	parts       []*FilePartsInfo
	eml         *Eml
	processInfo *ProcessInfo
	now         time.Time
}

// presentParts returns the part kinds that have at least one non-empty
// fragment. The occurrence core is always present.
func (s archiveSource) presentParts() []PartKind {
	kinds := []PartKind{OccurrencePart}
	for _, k := range AllParts[1:] {
		if s.hasData(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (s archiveSource) hasData(kind PartKind) bool {
	for _, p := range s.parts {
		for _, path := range p.Fragments(kind) {
			if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
				return true
			}
		}
	}
	return false
}

// buildArchive writes the archive into a new temp file in dir and returns its
// path. On error the temp file is removed.
func buildArchive(ctx context.Context, dir, identifier string, src archiveSource) (path string, err error) {
	f, err := os.CreateTemp(dir, identifier+"-*"+tempArchiveSuffix)
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	path = f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(path)
		}
	}()

	zw := zip.NewWriter(f)
	kinds := src.presentParts()

	meta, err := MetaXML(kinds)
	if err != nil {
		return "", fmt.Errorf("meta.xml: %w", err)
	}
	if err := writeEntry(zw, metaEntry, meta); err != nil {
		return "", err
	}

	eml, err := EmlXML(src.eml, src.now)
	if err != nil {
		return "", fmt.Errorf("eml.xml: %w", err)
	}
	if err := writeEntry(zw, emlEntry, eml); err != nil {
		return "", err
	}

	for _, kind := range kinds {
		if err := writePart(ctx, zw, kind, src.parts); err != nil {
			return "", fmt.Errorf("%s: %w", kind.FileName(), err)
		}
	}

	if src.processInfo != nil {
		info, err := processInfoXML(src.processInfo)
		if err != nil {
			return "", fmt.Errorf("processinfo.xml: %w", err)
		}
		if err := writeEntry(zw, processInfoEntry, info); err != nil {
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("sync archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	return path, nil
}

func writeEntry(zw *zip.Writer, name string, b []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// writePart writes the header row followed by every fragment of kind.
func writePart(ctx context.Context, zw *zip.Writer, kind PartKind, parts []*FilePartsInfo) error {
	w, err := zw.Create(kind.FileName())
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, kind); err != nil {
		return err
	}

	for _, p := range parts {
		for _, path := range p.Fragments(kind) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := appendFragment(bw, path); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func appendFragment(w io.Writer, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

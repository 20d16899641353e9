package dwca

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrHashUnknown means an archive could not be read to compute its hash.
var ErrHashUnknown = errors.New("archive hash unknown")

const (
	emlEntry         = "eml.xml"
	metaEntry        = "meta.xml"
	processInfoEntry = "processinfo.xml"
)

// CalculateHash returns a content surrogate for the archive at path: the sum
// of the uncompressed entry sizes, where eml.xml counts without its pubDate
// and processinfo.xml is skipped. Two archives built from the same data get
// the same hash on different days.
func CalculateHash(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashUnknown, err)
	}
	defer r.Close()

	var total uint64
	for _, f := range r.File {
		switch f.Name {
		case processInfoEntry:
			continue
		case emlEntry:
			n, err := emlSize(f)
			if err != nil {
				return "", fmt.Errorf("%w: %s: %w", ErrHashUnknown, f.Name, err)
			}
			total += n
		default:
			total += f.UncompressedSize64
		}
	}
	return strconv.FormatUint(total, 10), nil
}

func emlSize(f *zip.File) (uint64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return 0, err
	}
	return uint64(len(stripPubDate(b))), nil
}

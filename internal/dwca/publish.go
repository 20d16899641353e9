package dwca

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// ReplaceWithBackup publishes src at dst. The current dst, if any, is first
// preserved at backup. The swap itself is a single rename, so readers see
// either the old archive or the new one and never a partial file. src must
// live on the same filesystem as dst.
func ReplaceWithBackup(src, dst, backup string) error {
	if _, err := os.Stat(dst); err == nil {
		if err := os.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove old backup: %w", err)
		}
		if err := os.Link(dst, backup); err != nil {
			if err := copyFile(dst, backup); err != nil {
				return fmt.Errorf("backup %s: %w", dst, err)
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", dst, err)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("publish %s: %w", dst, err)
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

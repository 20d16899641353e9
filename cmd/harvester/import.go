package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/verbatim"
)

// importFlag is one -import value.
type importFlag struct {
	identifier string
	path       string
}

type importFlags []importFlag

func (f *importFlags) String() string {
	parts := make([]string, len(*f))
	for i, imp := range *f {
		parts[i] = imp.identifier + "=" + imp.path
	}
	return strings.Join(parts, ",")
}

func (f *importFlags) Set(v string) error {
	identifier, path, ok := strings.Cut(v, "=")
	if !ok || identifier == "" || path == "" {
		return fmt.Errorf("want identifier=path, got %q", v)
	}
	*f = append(*f, importFlag{identifier: identifier, path: path})
	return nil
}

// verbatimWriter is the part of the verbatim repository an import needs.
type verbatimWriter interface {
	DeleteProvider(ctx context.Context, providerID int) (int64, error)
	AddMany(ctx context.Context, providerID int, recs []verbatim.Record) (int64, error)
}

// importProvider replaces the verbatim records of one provider with the
// contents of a tab-separated file.
func importProvider(ctx context.Context, repo verbatimWriter, providers []*observation.DataProvider, imp importFlag) error {
	provider := findProvider(providers, imp.identifier)
	if provider == nil {
		return fmt.Errorf("unknown provider %q", imp.identifier)
	}

	cursor, err := verbatim.OpenCSVFile(imp.path, verbatim.CSVOptions{
		ProviderID: provider.ID,
		BatchSize:  provider.BatchSize,
	})
	if err != nil {
		return err
	}
	defer cursor.Close()

	if _, err := repo.DeleteProvider(ctx, provider.ID); err != nil {
		return fmt.Errorf("clear verbatim: %w", err)
	}

	var total int64
	for {
		recs, err := cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", imp.path, err)
		}
		n, err := repo.AddMany(ctx, provider.ID, recs)
		if err != nil {
			return fmt.Errorf("store verbatim: %w", err)
		}
		total += n
		slog.Debug("import progress", "provider", provider.Identifier, "rows", total, "percent", cursor.Progress())
	}
	slog.Info("provider imported", "provider", provider.Identifier, "rows", total)
	return nil
}

func findProvider(providers []*observation.DataProvider, identifier string) *observation.DataProvider {
	for _, p := range providers {
		if strings.EqualFold(p.Identifier, identifier) {
			return p
		}
	}
	return nil
}

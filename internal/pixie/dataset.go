package pixie

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pixie/internal/schema"
	"pixie/internal/store"
)

// OpenDataset loads the dataset's schema definition and opens its store,
// creating the backing file and any missing tables on first use.
func OpenDataset(ctx context.Context, cfg Config, code string) (*store.Store, error) {
	schemaPath := cfg.SchemaPath(code)

	sch, err := schema.Load(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", code, err)
	}

	if sch.Code != code {
		return nil, fmt.Errorf("dataset %s: schema file %s declares code %q", code, schemaPath, sch.Code)
	}

	s, err := store.Open(ctx, cfg.StorePath(code), sch)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", code, err)
	}

	return s, nil
}

// Datasets lists the dataset codes that have a schema definition in the data
// directory.
func Datasets(cfg Config) ([]string, error) {
	entries, err := os.ReadDir(cfg.DataDirAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list datasets: %w", err)
	}

	codes := make([]string, 0)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if code, ok := strings.CutSuffix(entry.Name(), ".jsonc"); ok && code != "" {
			codes = append(codes, code)
		}
	}

	return codes, nil
}

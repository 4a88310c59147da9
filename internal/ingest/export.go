package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/natefinch/atomic"

	"pixie/internal/store"
)

// Export writes every record of the table to path as newline-delimited JSON,
// one payload per line in primary-key order. The file is written atomically:
// readers never observe a half-written export.
func Export(ctx context.Context, s *store.Store, table, path string) (int, error) {
	seq, err := s.Iterate(ctx, table, store.Query{})
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", table, err)
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)

	count := 0

	for _, item := range seq {
		err = enc.Encode(item.Data)
		if err != nil {
			return 0, fmt.Errorf("export %s: encode key %s: %w", table, item.Key, err)
		}

		count++
	}

	err = atomic.WriteFile(path, &buf)
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", table, err)
	}

	return count, nil
}

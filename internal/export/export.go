// Package export writes canonical-entity snapshots for client-side
// filters. The format is JSON lines, one canonical artist per line, so
// consumers can stream it and diffs stay append-or-update shaped.
package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/tunegate/resolver/internal/store"
)

// Write encodes entries as JSON lines.
func Write(w io.Writer, entries []store.ExportEntry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return eris.Wrap(err, "export: encode entry")
		}
	}
	return nil
}

// Snapshot dumps every canonical entity from the store to w and returns
// how many were written. The snapshot is a point-in-time read; resolutions
// landing while it streams show up in the next one.
func Snapshot(ctx context.Context, st store.Store, w io.Writer) (int, error) {
	entries, err := st.Export(ctx)
	if err != nil {
		return 0, err
	}
	if err := Write(w, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

package main

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunegate/resolver/internal/model"
)

var (
	batchOutput      string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch <queries.csv>",
	Short: "Resolve a CSV of artist references",
	Long: `Reads queries from a CSV file and resolves them concurrently.

The CSV may be a single column of names, or carry a header row with any of
the columns raw_text, external_id, authority_hint. Output is JSON lines in
input order, one outcome per query.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queries, err := readQueriesCSV(args[0])
		if err != nil {
			return err
		}
		zap.L().Info("parsed batch", zap.Int("queries", len(queries)))

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Resolve.BatchConcurrency
		}
		outcomes, err := env.Resolver.ResolveMany(cmd.Context(), queries, concurrency)
		if err != nil {
			return eris.Wrap(err, "batch: resolve")
		}

		out := os.Stdout
		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrap(err, "batch: create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		enc := json.NewEncoder(out)
		resolved := 0
		for _, outcome := range outcomes {
			if outcome.Resolved() {
				resolved++
			}
			if err := enc.Encode(outcome); err != nil {
				return eris.Wrap(err, "batch: encode outcome")
			}
		}

		zap.L().Info("batch complete",
			zap.Int("total", len(outcomes)),
			zap.Int("resolved", resolved),
			zap.Int("unresolved", len(outcomes)-resolved),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "write JSON lines to file (default: stdout)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent resolutions (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// readQueriesCSV parses a batch file. A header row with a raw_text,
// external_id or authority_hint column switches to column mode; otherwise
// the first column of every row is taken as a name.
func readQueriesCSV(path string) ([]model.ResolutionQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "batch: parse csv")
	}
	if len(rows) == 0 {
		return nil, eris.New("batch: empty csv")
	}

	cols := headerColumns(rows[0])
	if cols != nil {
		rows = rows[1:]
	}

	var queries []model.ResolutionQuery
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		var q model.ResolutionQuery
		if cols == nil {
			q.RawText = strings.TrimSpace(row[0])
		} else {
			q = queryFromColumns(cols, row)
		}
		if q.RawText == "" && q.ExternalID == "" {
			continue
		}
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return nil, eris.New("batch: no usable rows")
	}
	return queries, nil
}

func headerColumns(row []string) map[string]int {
	cols := make(map[string]int, len(row))
	known := false
	for i, name := range row {
		name = strings.ToLower(strings.TrimSpace(name))
		cols[name] = i
		switch name {
		case "raw_text", "external_id", "authority_hint":
			known = true
		}
	}
	if !known {
		return nil
	}
	return cols
}

func queryFromColumns(cols map[string]int, row []string) model.ResolutionQuery {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	return model.ResolutionQuery{
		RawText:       field("raw_text"),
		ExternalID:    field("external_id"),
		AuthorityHint: field("authority_hint"),
	}
}

package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tunegate/resolver/internal/model"
)

var (
	resolveExternalID string
	resolveAuthority  string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [name]",
	Short: "Resolve an artist reference to its canonical entity",
	Long: `Resolves a free-text artist name, a platform identifier, or both to a
canonical entity. Prints the outcome as JSON: either a match with
confidence and provenance, or an unresolved answer with suggestions.

Examples:
  resolver resolve "the beatles"
  resolver resolve --id 3WrFJ7ztbogyGnTHbHJFl2 --authority spotify
  resolver resolve "Prince" --id sp-prince --authority spotify`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := model.ResolutionQuery{
			ExternalID:    resolveExternalID,
			AuthorityHint: resolveAuthority,
		}
		if len(args) == 1 {
			query.RawText = args[0]
		}
		if query.RawText == "" && query.ExternalID == "" {
			return eris.New("resolve: a name or --id is required")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.Resolver.Resolve(cmd.Context(), query)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveExternalID, "id", "", "external identifier to resolve")
	resolveCmd.Flags().StringVar(&resolveAuthority, "authority", "", "authority that issued --id")
	rootCmd.AddCommand(resolveCmd)
}

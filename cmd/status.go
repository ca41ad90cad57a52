package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tunegate/resolver/internal/monitoring"
)

var statusURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show breaker states and resolution counters of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := statusURL
		if url == "" {
			url = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url+"/status", nil)
		if err != nil {
			return eris.Wrap(err, "status: build request")
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "status: request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return eris.Errorf("status: server returned %d: %s", resp.StatusCode, body)
		}

		var snap monitoring.StatusSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return eris.Wrap(err, "status: decode response")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "", "server base URL (default http://localhost:<port>)")
	rootCmd.AddCommand(statusCmd)
}

package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/modlens/modlens/internal/config"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the background fetch status of a running server",
	Long: `Query a running modlens server for its background fetch status.

The server address comes from the configured server host and port; point
MODLENS_SERVER_HOST / MODLENS_SERVER_PORT at a remote instance if needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		url := fmt.Sprintf("http://%s:%d/background-fetch", cfg.Server.Host, cfg.Server.Port)
		client := &http.Client{Timeout: 5 * time.Second}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("server not reachable at %s: %w", url, err)
		}
		defer resp.Body.Close() // nolint:errcheck // read-only body

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if statusJSON {
			fmt.Println(strings.TrimSpace(string(body)))
			return nil
		}

		data := gjson.GetBytes(body, "data")
		lines := []string{
			"Background Fetch",
			"",
			fmt.Sprintf("running:       %v", data.Get("isRunning").Bool()),
			fmt.Sprintf("tokens:        %.2f / %d", data.Get("tokenBucket.tokens").Float(), data.Get("tokenBucket.capacity").Int()),
			fmt.Sprintf("refill rate:   %.2f/s", data.Get("tokenBucket.refillRatePerSecond").Float()),
			fmt.Sprintf("can request:   %v", data.Get("canMakeRequest").Bool()),
			fmt.Sprintf("rate limited:  %v", data.Get("rateLimited").Bool()),
		}
		fmt.Print(ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw JSON response")
}

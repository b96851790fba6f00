// Package commands implements the owotrackctl CLI commands.
package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	httpClient   *http.Client
	serverAddr   string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "owotrackctl",
	Short: "CLI client for the owotrackd daemon",
	Long:  "owotrackctl talks to the owotrackd introspection API to list connected trackers and watch their status.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		httpClient = &http.Client{Timeout: 5 * time.Second}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9970",
		"owotrackd introspection API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the CLI and exits the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// fetchDevices calls GET /api/v1/devices on the introspection API.
func fetchDevices() ([]deviceView, error) {
	url := "http://" + serverAddr + "/api/v1/devices"

	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: unexpected status %s", url, resp.Status)
	}

	var views []deviceView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil, fmt.Errorf("decode devices response: %w", err)
	}

	return views, nil
}

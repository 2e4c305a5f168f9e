package commands

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	// client is the meshsigd API client, initialized in PersistentPreRunE.
	client *apiClient

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's admin API base URL.
	serverAddr string
)

// rootCmd is the top-level cobra command for meshsigctl.
var rootCmd = &cobra.Command{
	Use:   "meshsigctl",
	Short: "CLI client for the meshsig daemon",
	Long:  "meshsigctl talks to the meshsigd admin API to inspect sessions and manage persistent links.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = &apiClient{
			baseURL: strings.TrimSuffix(serverAddr, "/"),
			http:    http.DefaultClient,
		}
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:8765",
		"meshsigd admin API base URL")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag     string
	apiKeyFlag  string
	verboseFlag bool
	rootCmd     = &cobra.Command{
		Use:   "memoryctl",
		Short: "CLI client for the Cognio memory service",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "url", "u", envOr("COGNIO_URL", "http://localhost:8080"), "Memory service base URL")
	rootCmd.PersistentFlags().StringVarP(&apiKeyFlag, "api-key", "k", os.Getenv("COGNIO_API_KEY"), "API key sent as X-API-Key")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log HTTP requests and responses")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

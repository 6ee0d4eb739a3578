package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"f2b/internal/config"
	"f2b/internal/logger"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "f2b",
	Short: "Generate a backend from a frontend repository",
	Long: `f2b reads a frontend repository, discovers the API endpoints it calls
and generates a matching Node.js backend plus a Postman collection.

Examples:
  # Run the whole pipeline and write Projects/<repo>/api.zip
  f2b generate https://github.com/acme/shop-frontend

  # Convert an endpoint list into a Postman collection
  f2b postman Projects/shop-frontend/sorted_endpoints.json`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(postmanCmd)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// setup loads configuration and builds a stderr logger honoring --verbose.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := cfg.LogLevel
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = "debug"
	}
	log, err := logger.NewWithWriter(level, "console", cmd.ErrOrStderr())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

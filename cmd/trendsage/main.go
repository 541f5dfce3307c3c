package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trendsage",
		Short: "Discover and rank trending topics for an industry, region and persona",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(runCommand())
	root.AddCommand(fetchCmd())
	root.AddCommand(queriesCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server with the background ingestion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon: HTTP API, ingestion worker and refresh sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func fetchCmd() *cobra.Command {
	var industry, region, persona, dateRange string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one trend query synchronously and print the ranked results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(industry, region, persona, dateRange, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&industry, "industry", "", "industry (e.g. EdTech)")
	cmd.Flags().StringVar(&region, "region", "", "region (e.g. India)")
	cmd.Flags().StringVar(&persona, "persona", "", "persona (e.g. founders)")
	cmd.Flags().StringVar(&dateRange, "date-range", "", "date range (e.g. last_week)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.MarkFlagRequired("industry")
	cmd.MarkFlagRequired("region")
	cmd.MarkFlagRequired("persona")
	cmd.MarkFlagRequired("date-range")
	return cmd
}

func queriesCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "List recent trend queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueries(limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max queries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

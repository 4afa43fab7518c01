// Package main provides the Huginn CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/huginn/pkg/config"
	"github.com/orneryd/huginn/pkg/graph"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "huginn",
		Short: "Huginn - Embedded Property-Graph Database",
		Long: `Huginn is an embedded, single-file property-graph database
written in Go: nodes and directed labeled edges with typed
properties, stored with derived adjacency, label, and property
indexes on a transactional B+tree engine.

The CLI operates on an existing database file for inspection,
integrity checking, and export. Applications embed the library
directly; see pkg/graph.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "huginn.yaml", "Config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Huginn v%s (%s)\n", version, commit)
		},
	})

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print node and edge counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cfgPath, runStats)
		},
	}
	rootCmd.AddCommand(statsCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify index consistency",
		Long: `Check cross-references every derived index row against the primary
node and edge records and reports every inconsistency found. Exits
non-zero when the file is damaged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cfgPath, runCheck)
		},
	}
	rootCmd.AddCommand(checkCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the full graph as JSON to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cfgPath, runExport)
		},
	}
	rootCmd.AddCommand(exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withDB opens the configured database read-only, runs fn inside a read
// transaction, and closes up.
func withDB(cfgPath string, fn func(*graph.Txn) error) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return fmt.Errorf("database %s: %w", cfg.Path, err)
	}

	opts := cfg.GraphOptions()
	opts.ReadOnly = true
	opts.NoSync = false
	db, err := graph.Open(cfg.Path, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(fn)
}

func runStats(tx *graph.Txn) error {
	nodes, err := tx.NodeCount()
	if err != nil {
		return err
	}
	edges, err := tx.EdgeCount()
	if err != nil {
		return err
	}
	fmt.Printf("Nodes: %d\nEdges: %d\n", nodes, edges)
	return nil
}

func runCheck(tx *graph.Txn) error {
	violations, err := tx.Check()
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		fmt.Println("OK: all indexes consistent")
		return nil
	}
	for _, v := range violations {
		fmt.Fprintln(os.Stderr, v)
	}
	return fmt.Errorf("%d consistency violation(s)", len(violations))
}

func runExport(tx *graph.Txn) error {
	doc, err := tx.Export()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Command pmmlc compiles PMML RegressionModel documents ahead of time into
// standalone Lua source, and provides the surrounding developer tooling
// (watch, serve, lsp) around that compiler.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pmmlc",
		Short: "PMML RegressionModel compiler",
		Long:  "pmmlc compiles PMML RegressionModel documents ahead of time into standalone Lua scoring functions.",
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompileCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLSPCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print pmmlc's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("pmmlc %s (%s)\n", version, commit)
			return nil
		},
	}
}

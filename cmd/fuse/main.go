// Package main provides the Fuse training CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "fuse",
		Short:         "Fuse - graph-convolutional training engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(
		newTrainCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Run: func(*cobra.Command, []string) {
				fmt.Printf("fuse %s\n", version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

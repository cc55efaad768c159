// Package cli provides CLI commands for the FakeS3 server.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "unknown"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fakes3",
		Short: "FakeS3 - a filesystem-backed S3 stand-in",
		Long: "FakeS3 serves the S3 bucket, object and multipart APIs from a plain directory tree,\n" +
			"for tests and local development.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewServerCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

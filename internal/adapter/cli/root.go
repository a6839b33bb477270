// Package cli defines the command surface of the flowlint binary.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI. The run functions
// block until their context is canceled.
type Dependencies struct {
	RunServer func(ctx context.Context) error
	RunWorker func(ctx context.Context) error
	Args      Arguments
	Version   string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}

	root := &cobra.Command{
		Use:   "flowlint",
		Short: "GitHub App that lints workflow files on pull requests",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook ingress server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.RunServer == nil {
				return fmt.Errorf("server is not configured")
			}
			return deps.RunServer(cmd.Context())
		},
	}

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the review worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.RunWorker == nil {
				return fmt.Errorf("worker is not configured")
			}
			return deps.RunWorker(cmd.Context())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(outWriter, versionString)
			return err
		},
	}

	root.AddCommand(serveCmd, workerCmd, versionCmd)
	return root
}

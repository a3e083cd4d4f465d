// Package cli implements the pdfqa operator commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gwi.com/pdf-qa/internal/config"
	"gwi.com/pdf-qa/internal/core"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

type Ingester interface {
	Ingest(ctx context.Context, req core.IngestRequest) (*core.IngestResult, error)
}

type Asker interface {
	Ask(ctx context.Context, question string) (*core.AnswerStream, error)
}

var (
	ingestService Ingester
	askService    Asker
	closeServices func()
)

var rootCmd = &cobra.Command{
	Use:   "pdfqa",
	Short: "Ask questions about PDF documents",
	Long: `pdfqa ingests PDF documents into a vector store and answers
questions about them with a language model, using the same
configuration as the HTTP server.`,
	SilenceUsage:      true,
	PersistentPreRunE: initServices,
	PersistentPostRun: func(*cobra.Command, []string) {
		if closeServices != nil {
			closeServices()
			closeServices = nil
		}
	},
}

// initServices builds the services from the environment unless they were
// already provided.
func initServices(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd || cmd.Name() == "help" || (ingestService != nil && askService != nil) {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	svc, err := core.NewServices(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	ingestService = svc.Ingestion
	askService = svc.Retrieval
	closeServices = func() {
		svc.Close()
		ingestService = nil
		askService = nil
	}
	return nil
}

// Execute runs the root command. Ctrl+C cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if closeServices != nil {
		closeServices()
		closeServices = nil
	}
	return err
}

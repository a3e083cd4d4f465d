package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gwi.com/pdf-qa/internal/core"
)

var (
	ingestMaxLength int
	ingestJSON      bool
	ingestVerbose   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.pdf]",
	Short: "Index a PDF document",
	Long: `Extracts the text of a PDF, splits it into chunks, embeds each chunk
and upserts the vectors into the configured namespace.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestMaxLength, "max-length", 0, "chunk size in characters (0 uses CHUNK_SIZE)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the result as JSON")
	ingestCmd.Flags().BoolVarP(&ingestVerbose, "verbose", "v", false, "print the ingestion log")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}
	if ingestMaxLength < 0 {
		return errors.New("--max-length must not be negative")
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	res, err := ingestService.Ingest(cmd.Context(), core.IngestRequest{
		Filename:  filepath.Base(path),
		Data:      data,
		MaxLength: ingestMaxLength,
	})
	if res != nil && ingestVerbose {
		for _, line := range res.Logs {
			cmd.PrintErrln(line)
		}
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if ingestJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Println(res.Message)
	cmd.Printf("Chunks: %d (stored %d)\n", res.Chunks, res.Stored)
	return nil
}

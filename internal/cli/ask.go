package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var askSources bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the indexed documents",
	Long: `Retrieves the passages most similar to the question and streams the
model's answer to standard output as it is generated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVarP(&askSources, "sources", "s", false, "print the retrieved passages after the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askService == nil {
		return errors.New("retrieval service not configured")
	}

	question := strings.Join(args, " ")
	answer, err := askService.Ask(cmd.Context(), question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	defer answer.Close()

	out := cmd.OutOrStdout()
	for {
		fragment, ok := answer.Next()
		if !ok {
			break
		}
		io.WriteString(out, fragment)
	}
	fmt.Fprintln(out)

	if err := answer.Err(); err != nil {
		return fmt.Errorf("answer interrupted: %w", err)
	}

	if askSources {
		if len(answer.Matches) == 0 {
			cmd.Println("No sources found.")
			return nil
		}
		cmd.Println()
		cmd.Println("Sources:")
		for i, m := range answer.Matches {
			cmd.Printf("[%d] %s (%.3f)\n", i+1, m.ID, m.Score)
			cmd.Printf("    %s\n", snippet(m.Metadata.Text, 120))
		}
	}
	return nil
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

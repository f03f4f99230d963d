package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

var (
	askSessionID string
	askMaxTools  int
	askHints     map[string]string
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Answer one query and print the response as JSON",
	Long: `Answer one query and print the full response, tool calls included, as JSON.
If no query is given as arguments it is read from stdin.`,
	Example: `  copilot ask "What's the current inventory for SKU ABC123?"
  copilot ask --hint entity_type=sku --hint entity_id=XYZ789 "demand outlook?"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading query from stdin: %w", err)
			}
			query = strings.TrimSpace(string(raw))
		}
		if query == "" {
			return errors.New("a query is required")
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		resp, err := app.Orchestrator.ProcessQuery(cmd.Context(), contractx.Query{
			Text:      query,
			SessionID: askSessionID,
			Hints:     hintsFromFlags(askHints),
			MaxTools:  askMaxTools,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	askCmd.Flags().StringVarP(&askSessionID, "session", "s", "", "session id (default: a new anonymous session)")
	askCmd.Flags().IntVar(&askMaxTools, "max-tools", 0, "maximum number of tools to run (default 3)")
	askCmd.Flags().StringToStringVar(&askHints, "hint", nil, "context hint as key=value, repeatable")
}

func hintsFromFlags(flags map[string]string) contractx.Hints {
	if len(flags) == 0 {
		return nil
	}
	hints := make(contractx.Hints, len(flags))
	for k, v := range flags {
		hints[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return hints
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the copilot",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		tools := app.Orchestrator.ListTools()
		if toolsJSON {
			return writeJSON(cmd.OutOrStdout(), tools)
		}
		return printTools(cmd.OutOrStdout(), tools)
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print tool descriptors as JSON")
}

func printTools(w io.Writer, tools []contractx.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINPUTS\tDESCRIPTION")
	for _, d := range tools {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, inputNames(d), d.Description)
	}
	return tw.Flush()
}

// inputNames lists the fields of a descriptor, required ones marked with *.
func inputNames(d contractx.Descriptor) string {
	names := make([]string, 0, len(d.InputSchema))
	for name, field := range d.InputSchema {
		if field.Required {
			name += "*"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

package callerpro

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eburon/callerpro/pkg/callcenter"
)

// NewAgentsCmd creates the agents command
func NewAgentsCmd(v *viper.Viper) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the agent catalog",
		Long: `List the agents callerpro can dial. Agents active for the dialer are
listed first.

Examples:
  callerpro agents
  callerpro agents --catalog agents.yaml -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			catalog, err := callcenter.LoadCatalog(cfg)
			if err != nil {
				return err
			}
			agents, err := catalog.ListAgents(cmd.Context())
			if err != nil {
				return err
			}

			summaries := make([]callcenter.AgentSummary, 0, len(agents))
			for _, a := range agents {
				summaries = append(summaries, callcenter.Summarize(a))
			}
			return printAgents(cmd.OutOrStdout(), output, summaries)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")

	return cmd
}

func printAgents(w io.Writer, format string, agents []callcenter.AgentSummary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(agents)
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "Name", "Backend", "Model", "Voice", "Dialer", "Tools"})
		for _, a := range agents {
			dialer := ""
			if a.ActiveForDialer {
				dialer = "yes"
			}
			t.AppendRow(table.Row{a.ID, a.Name, a.Backend, a.Model, a.Voice, dialer, strings.Join(a.Tools, "\n")})
		}
		t.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

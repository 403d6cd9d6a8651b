package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents in the catalog",
	RunE:  runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	entry := rt.catalog.Entry().Name
	fmt.Fprintf(out, "Catalog: %s\n", rt.catalog.Name())

	for _, name := range rt.catalog.Names() {
		a, _ := rt.catalog.Agent(name)
		label := name
		if name == entry {
			label += " (entry)"
		}
		fmt.Fprintf(out, "\n%s\n", label)
		if desc := rt.catalog.Describe(name); desc != "" {
			fmt.Fprintf(out, "  %s\n", desc)
		}
		fmt.Fprintf(out, "  model: %s\n", a.Model)

		tools := make([]string, 0, len(a.Functions))
		for _, fn := range a.Functions {
			tools = append(tools, fn.Name)
		}
		if len(tools) > 0 {
			fmt.Fprintf(out, "  tools: %s\n", strings.Join(tools, ", "))
		}
	}
	return nil
}

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// toolsCmd prints the tool catalog
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the retrieval tools available to the orchestrator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry(cfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, spec := range reg.Catalog() {
			name := toolColor.Sprint(spec.Name)
			if spec.Placeholder {
				name += dimColor.Sprint(" (not configured)")
			}
			fmt.Fprintf(out, "%s [%s]\n  %s\n", name, spec.Category, spec.Description)

			params := make([]string, 0, len(spec.Schema.Properties))
			for p := range spec.Schema.Properties {
				params = append(params, p)
			}
			sort.Strings(params)
			for _, p := range params {
				req := ""
				for _, r := range spec.Schema.Required {
					if r == p {
						req = " (required)"
					}
				}
				prop := spec.Schema.Properties[p]
				fmt.Fprintf(out, "  - %s %s%s: %s\n", p, prop.Type, req, strings.TrimSpace(prop.Description))
			}
		}
		return nil
	},
}

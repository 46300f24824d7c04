package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halim/evo/internal/config"
	"github.com/halim/evo/pkg/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the custom tools persisted on disk",
	RunE:  runTools,
}

var toolsShowSource bool

func init() {
	toolsCmd.Flags().BoolVar(&toolsShowSource, "source", false, "print each tool's JavaScript source")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	store, err := tools.NewStore(cfg.Tools.Dir, nil)
	if err != nil {
		return fmt.Errorf("open tool store: %w", err)
	}

	manifests, err := store.List()
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	if len(manifests) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No custom tools.")
		return nil
	}

	out := cmd.OutOrStdout()
	for _, m := range manifests {
		fmt.Fprintf(out, "%s (v%d, created %s)\n  %s\n",
			m.Name, m.Version, m.CreatedAt.Format("2006-01-02"), m.Description)
		for _, p := range m.Parameters {
			req := ""
			if p.Required {
				req = " (required)"
			}
			fmt.Fprintf(out, "    - %s %s%s: %s\n", p.Name, p.Type, req, p.Description)
		}
		if toolsShowSource {
			fmt.Fprintf(out, "\n%s\n\n", m.Source)
		}
	}
	return nil
}

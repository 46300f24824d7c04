package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halim/evo/internal/config"
	"github.com/halim/evo/pkg/cron"
	"github.com/halim/evo/pkg/memory"
	"github.com/halim/evo/pkg/session"
	"github.com/halim/evo/pkg/tools"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and stored state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config:    %s\n", loader.Path())
	fmt.Fprintf(out, "Data dir:  %s\n", cfg.DataDir)
	fmt.Fprintf(out, "Provider:  %s (%s)\n", cfg.Provider.Name, cfg.Provider.Model)
	fmt.Fprintf(out, "Allowlist: %d user(s)\n", len(cfg.Telegram.Allowlist))

	if store, err := tools.NewStore(cfg.Tools.Dir, nil); err == nil {
		if manifests, err := store.List(); err == nil {
			fmt.Fprintf(out, "Tools:     %d custom tool(s) in %s\n", len(manifests), cfg.Tools.Dir)
		}
	}

	if sessions, err := session.New(cfg.Sessions.Dir); err == nil {
		if keys, err := sessions.List(); err == nil {
			fmt.Fprintf(out, "Sessions:  %d\n", len(keys))
		}
	}

	if memStore, err := memory.New(cfg.Memory.DBPath); err == nil {
		if count, err := memStore.Count(context.Background()); err == nil {
			fmt.Fprintf(out, "Memory:    %d fact(s)\n", count)
		}
		memStore.Close()
	}

	if scheduler, err := cron.NewService(cron.ServiceOptions{
		StorePath: cfg.Scheduler.StorePath,
		Run:       func(context.Context, cron.Task) error { return nil },
	}); err == nil {
		fmt.Fprintf(out, "Tasks:     %d scheduled\n", len(scheduler.List(0)))
	}

	for _, warning := range config.Warnings(cfg) {
		fmt.Fprintf(out, "Warning:   %s\n", warning)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(out, "\n%v\n", err)
	}
	return nil
}

// Package cli implements the evo command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "evo",
	Short: "evo - a self-extending Telegram assistant",
	Long: `evo is a personal assistant that runs over Telegram and extends
itself: when the planner needs a capability it does not have, it writes a new
tool, the tool is validated and persisted, and it becomes callable on the
next turn.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.evo/config.json)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

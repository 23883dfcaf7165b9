package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints the settings after applying defaults, the --config file and
FMREFINE_* environment variables, as YAML that --config accepts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		return settings.Encode(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

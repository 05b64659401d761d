package cmd

import (
	"github.com/spf13/cobra"

	"github.com/datamancy/corpusd/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize corpusd configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure sources and collections and generates a .corpusd.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

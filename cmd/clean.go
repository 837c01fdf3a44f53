package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/megumi/internal/config"
	"github.com/tanq16/megumi/utils"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove leftover segment files from the staging directory",
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		cfg, err := config.Load(configDir)
		if err != nil {
			utils.PrintError(fmt.Sprintf("Configuration error: %v", err))
			os.Exit(1)
		}
		if err := utils.CleanStaging(cfg.StagingDir); err != nil {
			utils.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
			os.Exit(1)
		}
		utils.PrintSuccess("Temporary files cleaned up")
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

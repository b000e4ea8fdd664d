package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"tgmatch/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "tgmatch",
	Short: "Telegram dating app backend",
}

// Version should be injected via ldflags.
var Version = "dev"

var configPath string

func Init(version string) {
	if version != "" {
		Version = version
	}
	rootCmd.Version = Version

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to YAML config")
	rootCmd.AddCommand(serveCmd, migrateCmd, initConfigCmd, signCmd, promoteCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	return cfg
}

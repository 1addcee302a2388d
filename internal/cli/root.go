package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/watcherhq/watcher/internal/cli.version=1.2.3"
	version = "0.1.0"
	logo    = "\n" +
		"  __      __     _       _               \n" +
		"  \\ \\    / /    | |     | |              \n" +
		"   \\ \\  / /_ _  | |_ ___| |__   ___ _ __  \n" +
		"    \\ \\/ / _` | | __/ __| '_ \\ / _ \\ '__| \n" +
		"     \\  / (_| | | || (__| | | |  __/ |    \n" +
		"      \\/ \\__,_|  \\__\\___|_| |_|\\___|_|    \n"
)

var rootCmd = &cobra.Command{
	Use:   "watcher",
	Short: "Watcher - a persistent chat-observing agent",
	Long: color.CyanString(logo) + "\nObserves chat activity, earns and decays salience per topic, and " +
		"runs declarative reflection layers over whatever has stayed warm.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(observeCmd)
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(salienceCmd)
	rootCmd.AddCommand(layerCmd)
	rootCmd.AddCommand(reflectCmd)
}

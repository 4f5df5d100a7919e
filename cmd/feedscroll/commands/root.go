// Package commands implements the CLI commands for feedscroll.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/feedscroll/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "feedscroll",
	Short: "Follow infinite-scroll pagination as the reader scrolls",
	Long: `Feedscroll loads the next page of a paginated feed whenever the reader
gets close to the end of what is already shown.

Each page is fetched, its items are selected with a CSS selector, and the
pagination link is followed until a page without one is reached.

Examples:
  # Scroll through a feed headlessly and print every page as JSON
  feedscroll scroll https://example.com/blog --items ".post" --next "a.next"

  # Read a feed in the terminal
  feedscroll read https://example.com/blog --items ".post" --next "a.next"

  # Append pages into a live browser tab
  feedscroll browse https://example.com/blog --items ".post" --next "a.next" \
      --container "#posts"`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.feedscroll.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().Bool("log-json", false, "write logs as JSON")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".feedscroll")
		viper.SetConfigType("yaml")
	}

	// Environment variables
	viper.SetEnvPrefix("FEEDSCROLL")
	viper.AutomaticEnv()

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger configures logging from the global flags.
func initLogger() {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log_json"),
	})
	if f := viper.ConfigFileUsed(); f != "" {
		logger.Debug("using config file", "path", f)
	}
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

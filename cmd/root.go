package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	archiveCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/archive"
	syncCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/clocksync"
	ctfCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/ctf"
	lapsCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/laps"
	nodesCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/nodes"
	raceCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/race"
	rankCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/rank"
	serverCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/server"
	watchCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/watch"
	"github.com/simplefpvtimer/sftctl/pkg/config"
	"github.com/simplefpvtimer/sftctl/version"
)

const envPrefix = "SFT"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "sftctl",
	Short:   "Controller and command line client for simple FPV timers",
	Long:    ``,
	Version: version.FullVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.sftctl.yml)")

	rootCmd.PersistentFlags().StringVar(&config.DeviceURL, "device",
		"http://192.168.4.1",
		"URL of the timer device or controller")
	rootCmd.PersistentFlags().StringVar(&config.WaitForDevice,
		"wait-for-device",
		"5s",
		"Duration to wait for the device to accept connections (0 disables)")
	rootCmd.PersistentFlags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVar(&config.LogFormat,
		"log-format",
		"text",
		"controls the log output format (json, text)")
	rootCmd.PersistentFlags().StringVar(&config.LogFilter,
		"log-filter",
		"",
		"zapfilter rules, e.g. \"*:info timesync:debug\"")

	// add commands here
	rootCmd.AddCommand(serverCmd.NewServerCmd())
	rootCmd.AddCommand(syncCmd.NewSyncCmd())
	rootCmd.AddCommand(rankCmd.NewRankCmd())
	rootCmd.AddCommand(lapsCmd.NewLapsCmd())
	rootCmd.AddCommand(watchCmd.NewWatchCmd())
	rootCmd.AddCommand(nodesCmd.NewNodesCmd())
	rootCmd.AddCommand(raceCmd.NewRaceCmd())
	rootCmd.AddCommand(ctfCmd.NewCtfCmd())
	rootCmd.AddCommand(archiveCmd.NewArchiveCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sftctl")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindCommands(rootCmd, viper.GetViper())
}

func bindCommands(cmd *cobra.Command, v *viper.Viper) {
	bindFlags(cmd, v)
	for _, sub := range cmd.Commands() {
		bindCommands(sub, v)
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --log-level to SFT_LOG_LEVEL
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}

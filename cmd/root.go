/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/rotblauer/catspeed/common"
	"github.com/rotblauer/catspeed/params"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catspeed",
	Short: "How fast is the cat going",
	Long: `catspeed tracks cats' speeds from their position fixes,
and notices when they stop.

Positions can be piped in (track), simulated (simulate),
or posted to a web daemon (webd).`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pFlags := rootCmd.PersistentFlags()
	pFlags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.catspeed.yaml)")
	pFlags.String("datadir", params.DefaultDatadirRoot, "Directory for state and trip archives")
	pFlags.Int("verbosity", 3, "Logging verbosity, 0 (errors only) to 5 (debug)")
	pFlags.String("log-format", "text", "Log format, text or json")

	_ = viper.BindPFlag("datadir", pFlags.Lookup("datadir"))
	_ = viper.BindPFlag("verbosity", pFlags.Lookup("verbosity"))
	_ = viper.BindPFlag("log-format", pFlags.Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".catspeed")
	}

	// eg. CATSPEED_DATADIR, CATSPEED_VERBOSITY
	viper.SetEnvPrefix("catspeed")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaultSlog installs the process logger.
// Logs go to stderr; stdout is for output.
func setDefaultSlog(cmd *cobra.Command, args []string) {
	opts := &slog.HandlerOptions{
		Level: common.SlogLevelFromVerbosity(viper.GetInt("verbosity")),
	}
	var handler slog.Handler
	switch viper.GetString("log-format") {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler).With("cmd", cmd.Name()))
}

// datadir is the expanded data directory.
func datadir() string {
	d, err := homedir.Expand(viper.GetString("datadir"))
	cobra.CheckErr(err)
	return filepath.Clean(d)
}

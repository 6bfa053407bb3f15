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
	"context"
	"log"
	"log/slog"

	"github.com/rotblauer/catspeed/common"
	"github.com/rotblauer/catspeed/daemon/webd"
	"github.com/rotblauer/catspeed/params"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var optHTTPAddr string
var optRegistrySize int
var optNoInflux bool

// webdCmd represents the serve command
var webdCmd = &cobra.Command{
	Use:   "webd",
	Short: "Start the webserver",
	Long: `Serves cats' speeds on the internet.

Cats POST their positions to /populate?cat=<name> and get their status back.
Statuses are broadcast on the /socat websocket. Set COTOKEN to require
a matching AuthorizationOfCats header (or api_token param) on writes,
and INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG, INFLUXDB_BUCKET to export.`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)
		ctx, cancel := common.InterruptedContext(context.Background())
		defer cancel()

		config := params.DefaultWebDaemonConfig()
		config.DataDir = datadir()
		config.Address = viper.GetString("address")
		config.RegistrySize = optRegistrySize
		config.Tracker = optTracker
		if optNoInflux {
			config.Influx = nil
		}

		server, err := webd.NewWebDaemon(config)
		if err != nil {
			log.Fatalln(err)
		}
		slog.Info("webd.Run", "datadir", config.DataDir, "influx", config.Influx.Enabled())
		if err := server.Run(ctx); err != nil {
			log.Fatalln(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(webdCmd)

	defaults := params.DefaultWebDaemonConfig()

	pFlags := webdCmd.PersistentFlags()
	pFlags.StringVar(&optHTTPAddr, "address", defaults.Address, "HTTP address to listen on")
	pFlags.IntVar(&optRegistrySize, "registry-size", defaults.RegistrySize, "Number of cat trackers kept in memory")
	pFlags.BoolVar(&optNoInflux, "no-influx", false, "Do not export to InfluxDB even if configured")
	pFlags.DurationVar(&optTracker.StopThreshold, "stop-threshold", optTracker.StopThreshold, "How long a cat sits still before the trip stops")
	_ = viper.BindPFlag("address", pFlags.Lookup("address"))
}

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
	"log/slog"
	"os"
	"time"

	"github.com/rotblauer/catspeed/catdb/flat"
	"github.com/rotblauer/catspeed/common"
	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/source/sim"
	"github.com/spf13/cobra"
)

var optSim = params.DefaultSimulatorConfig()
var optSimPace float64
var optSimRecord bool

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Track a simulated cat",
	Long: `Simulates a cat heading off from an origin at a fixed bearing and speed,
then sitting still until the trip stops. Output is as for track.

Examples:

  catspeed simulate --speed 19.3 --move 2m
  catspeed simulate --pace 1 --bearing 45
`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)
		ctx, cancel := common.InterruptedContext(context.Background())
		defer cancel()

		catID := conceptual.NewCatID(optCatName)
		if optSimRecord {
			// The recording and the simulation have to agree on when it happened.
			if optSim.StartMillis == 0 {
				optSim.StartMillis = time.Now().UnixMilli()
			}
			path := flat.RecordingPath(datadir(), catID)
			if err := flat.AppendPositions(path, sim.Track(optSim)...); err != nil {
				slog.Error("Failed to record simulation", "error", err)
				os.Exit(1)
			}
			slog.Info("Recorded simulation", "path", path)
		}

		src := sim.New(optSim, optSimPace)
		if err := runTracker(ctx, catID, src, src.Done, os.Stdout); err != nil {
			slog.Error("Tracking failed", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	pFlags := simulateCmd.PersistentFlags()
	pFlags.AddFlagSet(trackerFlags())
	pFlags.Float64Var(&optSim.OriginLat, "lat", optSim.OriginLat, "Origin latitude")
	pFlags.Float64Var(&optSim.OriginLng, "lng", optSim.OriginLng, "Origin longitude")
	pFlags.Float64Var(&optSim.Bearing, "bearing", optSim.Bearing, "Bearing in degrees, 0 is north")
	pFlags.Float64Var(&optSim.SpeedKmh, "speed", optSim.SpeedKmh, "Speed in km/h while moving")
	pFlags.DurationVar(&optSim.MoveDuration, "move", optSim.MoveDuration, "How long the cat moves")
	pFlags.DurationVar(&optSim.DwellDuration, "dwell", optSim.DwellDuration, "How long the cat sits still afterward")
	pFlags.DurationVar(&optSim.Step, "step", optSim.Step, "Time between fixes")
	pFlags.Int64Var(&optSim.StartMillis, "start", 0, "Timestamp of the first fix, in unix millis (default now); a fixed start also seeds the trip with the origin")
	pFlags.BoolVar(&optSimRecord, "record", false, "Also append the simulated positions to the cat's recording in the datadir, for track --file")
	pFlags.Float64Var(&optSimPace, "pace", 0, "Simulate in real time scaled by this factor, eg. 1 is real time, 0 is as fast as possible")
}

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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/rotblauer/catspeed/catdb/flat"
	"github.com/rotblauer/catspeed/common"
	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/metrics/influxdb"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/source/replay"
	"github.com/rotblauer/catspeed/types/status"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var optCatName string
var optPace float64
var optInputFile string
var optExport bool
var optTracker = params.DefaultSpeedTrackerConfig()

// trackCmd represents the track command
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track a cat's speed from positions on stdin",
	Long: `Reads positions from stdin and prints the cat's status, as JSON lines, as it changes.
When the cat stops, the trip summary is printed too, and tracking ends.

Positions may be read from a --file instead, eg. a recording made by simulate --record.
They may be a JSON array or a stream of plain {lat, lng, timestamp} objects,
legacy trackpoints, or GeoJSON features and feature collections.

Examples:

  cat rye.json | catspeed track --cat rye
  catspeed track --cat rye --pace 10 --file ~/.catspeed/recordings/rye.ndjson.gz
`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)
		ctx, cancel := common.InterruptedContext(context.Background())
		defer cancel()

		var in io.Reader = os.Stdin
		if optInputFile != "" {
			path, err := homedir.Expand(optInputFile)
			cobra.CheckErr(err)
			f, err := flat.OpenPositions(path)
			if err != nil {
				slog.Error("Failed to open positions", "error", err)
				os.Exit(1)
			}
			defer f.Close()
			in = f
		}

		src := replay.New(in, replay.WithPace(optPace))
		if err := runTracker(ctx, conceptual.NewCatID(optCatName), src, src.Done, os.Stdout); err != nil {
			slog.Error("Tracking failed", "error", err)
			os.Exit(1)
		}
		if err := src.Err(); err != nil {
			slog.Error("Failed to read positions", "error", err)
			os.Exit(1)
		}
	},
}

// runTracker tracks the cat from src until the trip stops, src is done, or the context is.
// Statuses and the trip summary are written to out as JSON lines.
func runTracker(ctx context.Context, catID conceptual.CatID, src speedtracker.Source, done func() <-chan struct{}, out io.Writer) error {
	logger := slog.With("cat", catID.String())
	enc := json.NewEncoder(out)

	var mu sync.Mutex
	var trips []speedtracker.TripSummary
	tracker := speedtracker.New(optTracker, src,
		speedtracker.WithLogger(logger),
		speedtracker.WithOnStopped(func(trip speedtracker.TripSummary) {
			trip.ID = uuid.New().String()
			trip.Cat = catID
			mu.Lock()
			trips = append(trips, trip)
			mu.Unlock()
		}))

	statuses, unsubscribe := tracker.Subscribe()
	defer unsubscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for s := range statuses {
			b, err := status.Marshal(s)
			if err != nil {
				logger.Error("Failed to marshal status", "error", err)
				continue
			}
			fmt.Fprintln(out, string(b))
		}
	}()

	if err := tracker.Start(ctx); err != nil {
		tracker.Close()
		<-printed
		return err
	}
	select {
	case <-done():
	case <-ctx.Done():
		logger.Warn("Interrupted")
	}
	tracker.Close()
	<-printed

	mu.Lock()
	defer mu.Unlock()
	if len(trips) == 0 {
		summary := tracker.Summary()
		summary.Cat = catID
		logger.Info("Done without stopping", "samples", summary.Samples)
		return enc.Encode(summary)
	}
	for _, trip := range trips {
		if err := enc.Encode(trip); err != nil {
			return err
		}
	}
	if optExport {
		influx := params.DefaultInfluxConfig()
		if !influx.Enabled() {
			logger.Warn("No INFLUXDB_URL set, not exporting")
			return nil
		}
		if err := influxdb.ExportTrips(influx, trips); err != nil {
			return err
		}
		logger.Info("Exported trips", "count", len(trips))
	}
	return nil
}

// trackerFlags are the flags shared by the commands that run a tracker.
func trackerFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("tracker", pflag.ExitOnError)
	flags.StringVar(&optCatName, "cat", conceptual.DefaultCatID.String(), "Name of the cat")
	flags.DurationVar(&optTracker.StopThreshold, "stop-threshold", optTracker.StopThreshold, "How long a cat sits still before the trip stops")
	flags.IntVar(&optTracker.Precision, "precision", optTracker.Precision, "Decimal places speeds are rounded to")
	flags.BoolVar(&optTracker.ReemitStationary, "reemit-stationary", optTracker.ReemitStationary, "Re-emit the held speed for stationary positions")
	flags.BoolVar(&optExport, "export", false, "Export trip summaries to InfluxDB (INFLUXDB_* env)")
	return flags
}

func init() {
	rootCmd.AddCommand(trackCmd)

	pFlags := trackCmd.PersistentFlags()
	pFlags.AddFlagSet(trackerFlags())
	pFlags.StringVar(&optInputFile, "file", "", "Read positions from this file instead of stdin; .gz files are decompressed")
	pFlags.Float64Var(&optPace, "pace", 0, "Replay in real time scaled by this factor, eg. 1 is real time, 0 is as fast as possible")
}

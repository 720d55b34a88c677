package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/signalsfoundry/coverage-engine/core"
	"github.com/signalsfoundry/coverage-engine/elevation"
	"github.com/signalsfoundry/coverage-engine/internal/logging"
	"github.com/signalsfoundry/coverage-engine/model"
)

func main() {
	lat := flag.Float64("lat", 0, "transmitter latitude in decimal degrees")
	lon := flag.Float64("lon", 0, "transmitter longitude in decimal degrees")
	heightM := flag.Float64("height", 30, "transmitter antenna height above ground (m)")
	erpDBm := flag.Float64("erp", 40, "effective radiated power (dBm)")
	freqMHz := flag.Float64("freq", 900, "frequency (MHz)")
	radiusKm := flag.Float64("radius", 10, "coverage radius (km)")
	floorDBm := flag.Float64("floor", -110, "signal floor for the above-floor statistic (dBm)")
	rxHeightM := flag.Float64("rx-height", 1.5, "receiver height above ground (m)")
	quality := flag.String("quality", "Medium", "sampling preset: Low, Medium, High, Ultra, Custom")
	terrain := flag.Bool("terrain", false, "enable terrain diffraction")
	tileDir := flag.String("tile-dir", "tiles", "directory for downloaded HGT tiles")
	cachePath := flag.String("cache", "", "sqlite elevation cache path (empty = memory only)")
	antennaPath := flag.String("antenna", "", "antenna pattern XML (empty = omni)")
	precacheOnly := flag.Bool("precache", false, "only warm the elevation cache for the circle, no computation")
	outPath := flag.String("out", "", "write the JSON result to this file instead of stdout")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	req := model.CoverageRequest{
		Transmitter: model.Transmitter{
			LatDeg:       *lat,
			LonDeg:       *lon,
			HeightM:      *heightM,
			ERPdBm:       *erpDBm,
			FrequencyMHz: *freqMHz,
		},
		RadiusKm:       *radiusKm,
		SignalFloorDBm: *floorDBm,
		RxHeightM:      *rxHeightM,
		UseTerrain:     *terrain,
		Quality:        model.Quality(*quality),
	}

	var store *elevation.Store
	if *terrain || *precacheOnly {
		cache, err := elevation.OpenPointCache(*cachePath)
		if err != nil {
			fatal("open elevation cache: %v", err)
		}
		defer cache.Close()

		tiles, err := elevation.NewTileStore(*tileDir, elevation.WithTileLogger(log))
		if err != nil {
			fatal("open tile store: %v", err)
		}

		store = elevation.NewStore(
			elevation.WithCache(cache),
			elevation.WithTiles(tiles),
			elevation.WithRemote(elevation.NewRemoteClient(elevation.WithRemoteLogger(log))),
			elevation.WithStoreLogger(log),
		)
	}

	if *precacheOnly {
		resolved, err := store.Precache(ctx, model.Point{LatDeg: *lat, LonDeg: *lon}, *radiusKm, 0)
		if err != nil {
			fatal("precache: %v", err)
		}
		fmt.Printf("precached %d points within %.1f km of (%.4f, %.4f)\n", resolved, *radiusKm, *lat, *lon)
		return
	}

	pattern := core.NewOmniPattern()
	if *antennaPath != "" {
		f, err := os.Open(*antennaPath)
		if err != nil {
			fatal("open antenna pattern: %v", err)
		}
		if err := pattern.LoadXML(f); err != nil {
			f.Close()
			fatal("parse antenna pattern: %v", err)
		}
		f.Close()
	}

	engine := core.NewEngine(
		core.WithPattern(pattern),
		core.WithElevationProvider(store),
		core.WithLogger(log),
		core.WithProgress(func(fraction float64) {
			fmt.Fprintf(os.Stderr, "\rterrain %3.0f%%", fraction*100)
			if fraction >= 1 {
				fmt.Fprintln(os.Stderr)
			}
		}),
	)

	result, err := engine.Compute(ctx, req)
	if err != nil {
		fatal("compute coverage: %v", err)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fatal("create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fatal("encode result: %v", err)
	}

	fmt.Fprintf(os.Stderr, "EIRP %.2f dBm, %d/%d points above %.1f dBm (mean %.1f dBm)\n",
		result.EIRPdBm, result.Stats.PointsAboveFloor, result.Stats.TotalPoints,
		*floorDBm, result.Stats.MeanPowerDBm)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "coverage-cli: "+format+"\n", args...)
	os.Exit(1)
}

// kavach-synth writes a synthetic emotion log workbook on a fixed timestamp
// grid, useful for exercising downstream dashboards without real recordings.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/dataset"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		out         string
		startTime   string
		endTime     string
		interval    int
		seed        int64
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&out, "out", "synthetic_log.xlsx", "Output workbook path")
	flag.StringVar(&startTime, "start", "", "Grid start, HH:MM:SS (overrides config)")
	flag.StringVar(&endTime, "end", "", "Grid end, HH:MM:SS (overrides config)")
	flag.IntVar(&interval, "interval", 10, "Seconds between rows")
	flag.Int64Var(&seed, "seed", 0, "Random seed, 0 means time-based")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logger.Error("failed to load config", slog.String("error", err.Error()))
			os.Exit(1)
		}
		cfg = loaded
	}
	if startTime != "" {
		cfg.Export.StartTime = startTime
	}
	if endTime != "" {
		cfg.Export.EndTime = endTime
	}
	if interval > 0 {
		cfg.Export.IntervalSeconds = interval
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	n, err := dataset.Generate(out, cfg.Export, seed, logger)
	if err != nil {
		logger.Error("generation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("done", slog.Int("rows", n), slog.String("out", out))
}

// kavach-export walks a labeled audio dataset tree and writes a spreadsheet
// log, one row per recording, with synthetic timestamps.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/dataset"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		root        string
		out         string
		startTime   string
		interval    int
		sheet       string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&root, "root", "", "Dataset root directory to walk")
	flag.StringVar(&out, "out", "emotion_log.xlsx", "Output workbook path")
	flag.StringVar(&startTime, "start", "", "First timestamp, HH:MM:SS (overrides config)")
	flag.IntVar(&interval, "interval", 0, "Seconds between rows (overrides config)")
	flag.StringVar(&sheet, "sheet", "", "Worksheet name (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if root == "" {
		logger.Error("missing required -root flag")
		os.Exit(2)
	}

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
	if interval > 0 {
		cfg.Export.IntervalSeconds = interval
	}
	if sheet != "" {
		cfg.Export.Sheet = sheet
	}

	n, err := dataset.Export(root, out, cfg.Export, logger)
	if err != nil {
		logger.Error("export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("done", slog.Int("rows", n), slog.String("out", out))
}

package dataset

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/kavachlabs/kavach/internal/config"
)

// Emotions is the label set used for synthetic rows.
var Emotions = []string{"angry", "sad", "happy", "disgust", "neutral"}

// Synthesize generates rows on a timestamp grid from cfg.StartTime to
// cfg.EndTime inclusive, stepping cfg.IntervalSeconds, with a random emotion
// per row drawn from the given source.
func Synthesize(cfg config.ExportConfig, rng *rand.Rand) ([]Row, error) {
	start, err := time.Parse(timeLayout, cfg.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	end, err := time.Parse(timeLayout, cfg.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end time %s is before start time %s", cfg.EndTime, cfg.StartTime)
	}
	interval := time.Duration(cfg.IntervalSeconds) * time.Second

	var rows []Row
	id := 1
	for current := start; !current.After(end); current = current.Add(interval) {
		rows = append(rows, Row{
			ID:      id,
			Time:    current.Format(timeLayout),
			Emotion: Emotions[rng.Intn(len(Emotions))],
		})
		id++
	}
	return rows, nil
}

// Generate writes a synthetic workbook to outPath.
func Generate(outPath string, cfg config.ExportConfig, seed int64, log *slog.Logger) (int, error) {
	rng := rand.New(rand.NewSource(seed))
	rows, err := Synthesize(cfg, rng)
	if err != nil {
		return 0, err
	}
	if err := writeWorkbook(outPath, cfg.Sheet, rows); err != nil {
		return 0, err
	}
	log.Info("synthetic dataset generated",
		slog.String("out", outPath),
		slog.Int("rows", len(rows)),
		slog.Int64("seed", seed))
	return len(rows), nil
}

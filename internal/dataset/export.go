// Package dataset builds spreadsheet logs from labeled audio datasets:
// either derived from a directory tree of recordings, or fully synthetic.
package dataset

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kavachlabs/kavach/internal/config"
)

// Row is one spreadsheet entry.
type Row struct {
	ID      int
	Time    string
	Emotion string
}

const timeLayout = "15:04:05"

// Collect walks the dataset tree in sorted order and derives one row per
// .wav file. The label is the suffix of the containing folder's name after
// the last underscore; timestamps are synthetic, starting at cfg.StartTime
// and advancing by cfg.IntervalSeconds per file.
func Collect(root string, cfg config.ExportConfig) ([]Row, error) {
	start, err := time.Parse(timeLayout, cfg.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	interval := time.Duration(cfg.IntervalSeconds) * time.Second

	var rows []Row
	current := start
	id := 1

	// WalkDir visits entries in lexical order, which keeps the export
	// deterministic for a given tree.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".wav") {
			return nil
		}
		folder := filepath.Base(filepath.Dir(path))
		emotion := folder
		if idx := strings.LastIndex(folder, "_"); idx >= 0 {
			emotion = folder[idx+1:]
		}
		rows = append(rows, Row{
			ID:      id,
			Time:    current.Format(timeLayout),
			Emotion: emotion,
		})
		current = current.Add(interval)
		id++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk dataset: %w", err)
	}
	return rows, nil
}

// Export collects the dataset tree and writes the workbook to outPath.
func Export(root, outPath string, cfg config.ExportConfig, log *slog.Logger) (int, error) {
	rows, err := Collect(root, cfg)
	if err != nil {
		return 0, err
	}
	if err := writeWorkbook(outPath, cfg.Sheet, rows); err != nil {
		return 0, err
	}
	log.Info("dataset exported",
		slog.String("root", root),
		slog.String("out", outPath),
		slog.Int("rows", len(rows)))
	return len(rows), nil
}

func writeWorkbook(path, sheet string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"id", "time", "inference_of_emotion"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{row.ID, row.Time, row.Emotion}); err != nil {
			return fmt.Errorf("write row %d: %w", row.ID, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

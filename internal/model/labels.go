package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kavachlabs/kavach/internal/protocol"
)

// Class pairs a label name with its derived safety category.
type Class struct {
	Name   string
	Safety protocol.Safety
}

// Table maps class indices to labels. Loaded once at startup, read-only
// afterwards.
type Table []Class

// Label returns the name for a class index, with a stable fallback for
// out-of-range predictions.
func (t Table) Label(index int) string {
	if index < 0 || index >= len(t) {
		return fmt.Sprintf("class %d", index)
	}
	return t[index].Name
}

// Safety returns the safety category for a class index.
func (t Table) Safety(index int) protocol.Safety {
	if index < 0 || index >= len(t) {
		return protocol.SafetySafe
	}
	return t[index].Safety
}

// BuiltinSafetyTable is the fixed 3-class table baked into the mel model.
func BuiltinSafetyTable() Table {
	return Table{
		{Name: "Safe/Neutral", Safety: protocol.SafetySafe},
		{Name: "DANGER (Fear)", Safety: protocol.SafetyDanger},
		{Name: "Caution (Angry)", Safety: protocol.SafetyCaution},
	}
}

// LoadTable reads a JSON array of label names and derives each label's
// safety category from its name.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label table: %w", err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse label table: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("label table %s is empty", path)
	}
	table := make(Table, len(names))
	for i, name := range names {
		table[i] = Class{Name: name, Safety: SafetyForLabel(name)}
	}
	return table, nil
}

// SafetyForLabel derives the coarse safety category from an emotion label:
// fear means danger, anger means caution, everything else is safe.
func SafetyForLabel(name string) protocol.Safety {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fear", "fearful":
		return protocol.SafetyDanger
	case "angry", "anger":
		return protocol.SafetyCaution
	default:
		return protocol.SafetySafe
	}
}

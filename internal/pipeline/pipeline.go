// Package pipeline wires audio loading, feature extraction, quantization and
// model inference into the two classification paths the runtime serves. The
// mel and MFCC pipelines target different trained models with different
// feature geometry and are deliberately kept independent.
package pipeline

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/protocol"
)

// LabelProb is one class probability in a prediction.
type LabelProb struct {
	Label string  `json:"label"`
	Prob  float64 `json:"prob"`
}

// Prediction is the interpreted result of one classification.
type Prediction struct {
	Pipeline   string          `json:"pipeline"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Safety     protocol.Safety `json:"safety"`
	Code       string          `json:"code"`
	Probs      []LabelProb     `json:"probs"`
}

// Pipeline classifies one audio file synchronously.
type Pipeline interface {
	Name() string
	Classify(path string) (Prediction, error)
	Close() error
}

// Set holds the configured pipelines keyed by name.
type Set struct {
	pipelines map[string]Pipeline
	def       string
}

// NewSet constructs every enabled pipeline. Model artifacts are loaded here,
// once; a missing artifact fails startup.
func NewSet(cfg config.PipelinesConfig, log *slog.Logger) (*Set, error) {
	s := &Set{pipelines: make(map[string]Pipeline), def: cfg.Default}
	if cfg.Mel.Enabled {
		p, err := NewMel(cfg.Mel, log)
		if err != nil {
			return nil, fmt.Errorf("mel pipeline: %w", err)
		}
		s.pipelines[p.Name()] = p
	}
	if cfg.MFCC.Enabled {
		p, err := NewMFCC(cfg.MFCC, log)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("mfcc pipeline: %w", err)
		}
		s.pipelines[p.Name()] = p
	}
	if len(s.pipelines) == 0 {
		return nil, fmt.Errorf("no pipelines enabled")
	}
	if _, ok := s.pipelines[s.def]; !ok {
		return nil, fmt.Errorf("default pipeline %q is not enabled", s.def)
	}
	return s, nil
}

// Get returns the named pipeline, or the default for an empty name.
func (s *Set) Get(name string) (Pipeline, error) {
	if name == "" {
		name = s.def
	}
	p, ok := s.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}
	return p, nil
}

// Names lists the configured pipelines in stable order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.pipelines))
	for name := range s.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the default pipeline name.
func (s *Set) Default() string {
	return s.def
}

// Close releases every pipeline's interpreter.
func (s *Set) Close() {
	for _, p := range s.pipelines {
		_ = p.Close()
	}
}

// softmax converts logits to probabilities, numerically stable.
func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > max {
			max = float64(v)
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(float64(v) - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// normalize scales non-negative scores to sum to one without reordering them.
func normalize(scores []float32) []float64 {
	probs := make([]float64, len(scores))
	var sum float64
	for i, v := range scores {
		p := float64(v)
		if p < 0 {
			p = 0
		}
		probs[i] = p
		sum += p
	}
	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}

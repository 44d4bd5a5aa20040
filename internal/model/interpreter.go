// Package model loads pre-trained quantized classifier artifacts and exposes
// a minimal synchronous inference interface with mock and TFLite backends.
package model

import (
	"fmt"
	"log/slog"

	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/tensor"
)

// DType enumerates the tensor element types the runtime understands.
type DType int

const (
	Float32 DType = iota
	Int8
)

func (d DType) String() string {
	switch d {
	case Int8:
		return "int8"
	default:
		return "float32"
	}
}

// TensorInfo describes a model input or output tensor.
type TensorInfo struct {
	Shape []int
	Type  DType
	Quant tensor.QuantParams
}

// Interpreter abstracts the model runtime. Invoke is synchronous and
// single-shot; implementations are not safe for concurrent use.
type Interpreter interface {
	InputInfo(index int) (TensorInfo, error)
	OutputInfo(index int) (TensorInfo, error)
	SetInputFloat32(index int, data []float32) error
	SetInputInt8(index int, data []int8) error
	Invoke() error
	OutputFloat32(index int) ([]float32, error)
	OutputInt8(index int) ([]int8, error)
	Close() error
}

// Spec describes the tensor geometry a pipeline expects. The TFLite backend
// reads the real geometry from the artifact; the mock backend synthesizes it
// from the spec.
type Spec struct {
	InputShape []int
	Classes    int
}

// New constructs the interpreter backend selected by the pipeline config.
// The model artifact is loaded once; a missing file is a fatal error for the
// caller to report.
func New(cfg config.PipelineConfig, spec Spec, log *slog.Logger) (Interpreter, error) {
	switch cfg.Mode {
	case "mock":
		return NewMock(spec.InputShape, spec.Classes), nil
	case "tflite":
		return NewTFLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown interpreter mode %q", cfg.Mode)
	}
}

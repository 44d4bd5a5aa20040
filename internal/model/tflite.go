package model

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-tflite"

	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/tensor"
)

type tfliteInterpreter struct {
	model   *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter
}

// NewTFLite loads a serialized TFLite model artifact from disk and allocates
// its tensors. The artifact is loaded once per interpreter; callers cache the
// interpreter for the process lifetime.
func NewTFLite(cfg config.PipelineConfig, log *slog.Logger) (Interpreter, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model artifact not found at %s: %w", cfg.ModelPath, err)
	}

	m := tflite.NewModelFromFile(cfg.ModelPath)
	if m == nil {
		return nil, fmt.Errorf("failed to load model artifact %s", cfg.ModelPath)
	}

	options := tflite.NewInterpreterOptions()
	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}
	options.SetNumThread(threads)

	interp := tflite.NewInterpreter(m, options)
	if interp == nil {
		options.Delete()
		m.Delete()
		return nil, fmt.Errorf("failed to create interpreter for %s", cfg.ModelPath)
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		options.Delete()
		m.Delete()
		return nil, fmt.Errorf("failed to allocate tensors for %s", cfg.ModelPath)
	}

	log.Info("model artifact loaded",
		slog.String("path", cfg.ModelPath),
		slog.Int("threads", threads))

	return &tfliteInterpreter{model: m, options: options, interp: interp}, nil
}

func (t *tfliteInterpreter) inputTensor(index int) (*tflite.Tensor, error) {
	if index < 0 || index >= t.interp.GetInputTensorCount() {
		return nil, fmt.Errorf("input tensor index %d out of range", index)
	}
	return t.interp.GetInputTensor(index), nil
}

func (t *tfliteInterpreter) outputTensor(index int) (*tflite.Tensor, error) {
	if index < 0 || index >= t.interp.GetOutputTensorCount() {
		return nil, fmt.Errorf("output tensor index %d out of range", index)
	}
	return t.interp.GetOutputTensor(index), nil
}

func describe(tt *tflite.Tensor) (TensorInfo, error) {
	shape := make([]int, tt.NumDims())
	for i := range shape {
		shape[i] = tt.Dim(i)
	}
	info := TensorInfo{Shape: shape}
	switch tt.Type() {
	case tflite.Float32:
		info.Type = Float32
	case tflite.Int8:
		info.Type = Int8
		qp := tt.QuantizationParams()
		info.Quant = tensor.QuantParams{Scale: qp.Scale, ZeroPoint: qp.ZeroPoint}
	default:
		return TensorInfo{}, fmt.Errorf("unsupported tensor type %v", tt.Type())
	}
	return info, nil
}

func (t *tfliteInterpreter) InputInfo(index int) (TensorInfo, error) {
	tt, err := t.inputTensor(index)
	if err != nil {
		return TensorInfo{}, err
	}
	return describe(tt)
}

func (t *tfliteInterpreter) OutputInfo(index int) (TensorInfo, error) {
	tt, err := t.outputTensor(index)
	if err != nil {
		return TensorInfo{}, err
	}
	return describe(tt)
}

func (t *tfliteInterpreter) SetInputFloat32(index int, data []float32) error {
	tt, err := t.inputTensor(index)
	if err != nil {
		return err
	}
	dst := tt.Float32s()
	if len(dst) != len(data) {
		return fmt.Errorf("input tensor holds %d float32 values, got %d", len(dst), len(data))
	}
	copy(dst, data)
	return nil
}

func (t *tfliteInterpreter) SetInputInt8(index int, data []int8) error {
	tt, err := t.inputTensor(index)
	if err != nil {
		return err
	}
	dst := tt.Int8s()
	if len(dst) != len(data) {
		return fmt.Errorf("input tensor holds %d int8 values, got %d", len(dst), len(data))
	}
	copy(dst, data)
	return nil
}

func (t *tfliteInterpreter) Invoke() error {
	if status := t.interp.Invoke(); status != tflite.OK {
		return fmt.Errorf("interpreter invoke failed with status %v", status)
	}
	return nil
}

func (t *tfliteInterpreter) OutputFloat32(index int) ([]float32, error) {
	tt, err := t.outputTensor(index)
	if err != nil {
		return nil, err
	}
	src := tt.Float32s()
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

func (t *tfliteInterpreter) OutputInt8(index int) ([]int8, error) {
	tt, err := t.outputTensor(index)
	if err != nil {
		return nil, err
	}
	src := tt.Int8s()
	out := make([]int8, len(src))
	copy(out, src)
	return out, nil
}

func (t *tfliteInterpreter) Close() error {
	if t.interp != nil {
		t.interp.Delete()
	}
	if t.options != nil {
		t.options.Delete()
	}
	if t.model != nil {
		t.model.Delete()
	}
	return nil
}

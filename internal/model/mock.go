package model

import (
	"fmt"
	"math"
)

// Mock is a model-less interpreter for tests and deployments without an
// artifact. Outputs are deterministic for a given input; tests may pin them
// via Scripted.
type Mock struct {
	inputShape []int
	classes    int

	// Scripted, when non-nil, is returned verbatim as the output tensor.
	Scripted []float32

	input   []float32
	output  []float32
	invoked bool
}

func NewMock(inputShape []int, classes int) *Mock {
	return &Mock{inputShape: append([]int(nil), inputShape...), classes: classes}
}

func (m *Mock) InputInfo(index int) (TensorInfo, error) {
	if index != 0 {
		return TensorInfo{}, fmt.Errorf("input tensor index %d out of range", index)
	}
	return TensorInfo{Shape: append([]int(nil), m.inputShape...), Type: Float32}, nil
}

func (m *Mock) OutputInfo(index int) (TensorInfo, error) {
	if index != 0 {
		return TensorInfo{}, fmt.Errorf("output tensor index %d out of range", index)
	}
	return TensorInfo{Shape: []int{1, m.classes}, Type: Float32}, nil
}

func (m *Mock) SetInputFloat32(index int, data []float32) error {
	if index != 0 {
		return fmt.Errorf("input tensor index %d out of range", index)
	}
	want := 1
	for _, d := range m.inputShape {
		want *= d
	}
	if len(data) != want {
		return fmt.Errorf("input tensor holds %d float32 values, got %d", want, len(data))
	}
	m.input = append(m.input[:0], data...)
	return nil
}

func (m *Mock) SetInputInt8(index int, data []int8) error {
	return fmt.Errorf("mock interpreter input is float32, not int8")
}

func (m *Mock) Invoke() error {
	if m.Scripted != nil {
		m.output = append([]float32(nil), m.Scripted...)
		m.invoked = true
		return nil
	}
	if m.input == nil {
		return fmt.Errorf("invoke called before input was set")
	}
	// Deterministic pseudo-logits: fold the input energy into each class.
	logits := make([]float32, m.classes)
	for i, v := range m.input {
		c := i % m.classes
		logits[c] += float32(math.Abs(float64(v)))
	}
	m.output = logits
	m.invoked = true
	return nil
}

func (m *Mock) OutputFloat32(index int) ([]float32, error) {
	if index != 0 {
		return nil, fmt.Errorf("output tensor index %d out of range", index)
	}
	if !m.invoked {
		return nil, fmt.Errorf("output requested before invoke")
	}
	return append([]float32(nil), m.output...), nil
}

func (m *Mock) OutputInt8(index int) ([]int8, error) {
	return nil, fmt.Errorf("mock interpreter output is float32, not int8")
}

func (m *Mock) Close() error { return nil }

var _ Interpreter = (*Mock)(nil)

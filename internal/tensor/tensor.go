// Package tensor holds the fixed-shape numeric buffers exchanged with the
// model runtime, plus the affine int8 quantization used by quantized models.
package tensor

import (
	"errors"
	"fmt"
	"math"
)

// ErrShapeMismatch is returned when a prepared tensor does not exactly match
// the model's declared input shape. The check runs before quantization.
var ErrShapeMismatch = errors.New("tensor shape mismatch")

// Tensor is a dense float32 array with an explicit shape.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zero tensor with the given shape.
func New(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

// Len returns the number of elements implied by the shape.
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// CheckShape verifies the tensor matches the expected shape exactly.
func (t *Tensor) CheckShape(want []int) error {
	if !ShapeEqual(t.Shape, want) {
		return fmt.Errorf("%w: got %v, expected %v", ErrShapeMismatch, t.Shape, want)
	}
	if len(t.Data) != t.Len() {
		return fmt.Errorf("%w: buffer holds %d values for shape %v", ErrShapeMismatch, len(t.Data), t.Shape)
	}
	return nil
}

// ShapeEqual reports whether two shapes are identical, dimension for dimension.
func ShapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// QuantParams is the (scale, zero-point) pair declared by a quantized model
// tensor. A zero scale means the tensor is not quantized.
type QuantParams struct {
	Scale     float64
	ZeroPoint int
}

// Quantized reports whether the parameters describe a real quantization.
func (q QuantParams) Quantized() bool {
	return q.Scale != 0
}

// Quantize maps float values into int8 via the affine transform
// q = round(x/scale) + zeroPoint, clipped to the int8 range.
func Quantize(data []float32, params QuantParams) []int8 {
	out := make([]int8, len(data))
	for i, v := range data {
		q := math.Round(float64(v)/params.Scale) + float64(params.ZeroPoint)
		if q > 127 {
			q = 127
		} else if q < -128 {
			q = -128
		}
		out[i] = int8(q)
	}
	return out
}

// Dequantize applies the exact inverse transform x = (q - zeroPoint) * scale.
func Dequantize(data []int8, params QuantParams) []float32 {
	out := make([]float32, len(data))
	for i, q := range data {
		out[i] = float32((float64(q) - float64(params.ZeroPoint)) * params.Scale)
	}
	return out
}

package tensor

import (
	"errors"
	"math"
	"testing"
)

func TestCheckShape(t *testing.T) {
	tsr := New(1, 1, 64, 64)
	if err := tsr.CheckShape([]int{1, 1, 64, 64}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := tsr.CheckShape([]int{1, 64, 64, 1})
	if err == nil {
		t.Fatal("expected shape mismatch")
	}
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestQuantizeClipsAndRounds(t *testing.T) {
	params := QuantParams{Scale: 0.5, ZeroPoint: 10}
	cases := []struct {
		in   float32
		want int8
	}{
		{0, 10},
		{0.5, 11},
		{-0.5, 9},
		{0.26, 11}, // rounds to nearest step
		{0.24, 10},
		{1000, 127},   // clipped high
		{-1000, -128}, // clipped low
	}
	for _, tc := range cases {
		got := Quantize([]float32{tc.in}, params)[0]
		if got != tc.want {
			t.Fatalf("quantize(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestQuantizeDequantizeRoundTrip(t *testing.T) {
	params := QuantParams{Scale: 1.0 / 255.0, ZeroPoint: -128}
	values := []float32{0, 0.1, 0.25, 0.5, 0.7321, 0.99, 1.0}
	back := Dequantize(Quantize(values, params), params)
	for i, v := range values {
		diff := math.Abs(float64(back[i]) - float64(v))
		if diff > params.Scale {
			t.Fatalf("round trip error for %v: got %v (diff %v > one step %v)", v, back[i], diff, params.Scale)
		}
	}
}

func TestQuantParamsQuantized(t *testing.T) {
	if (QuantParams{}).Quantized() {
		t.Fatal("zero params must not report quantized")
	}
	if !(QuantParams{Scale: 0.02, ZeroPoint: 3}).Quantized() {
		t.Fatal("non-zero scale must report quantized")
	}
}

package dsp

import "math"

// ResizeBilinear rescales the matrix to outH x outW using bilinear
// interpolation with half-pixel sample centers.
func ResizeBilinear(s [][]float64, outH, outW int) [][]float64 {
	inH := len(s)
	if inH == 0 {
		return nil
	}
	inW := len(s[0])

	out := make([][]float64, outH)
	scaleH := float64(inH) / float64(outH)
	scaleW := float64(inW) / float64(outW)

	for i := 0; i < outH; i++ {
		row := make([]float64, outW)
		y := (float64(i)+0.5)*scaleH - 0.5
		y0 := int(math.Floor(y))
		fy := y - float64(y0)
		y0, y1 := clampIndex(y0, inH), clampIndex(y0+1, inH)

		for j := 0; j < outW; j++ {
			x := (float64(j)+0.5)*scaleW - 0.5
			x0 := int(math.Floor(x))
			fx := x - float64(x0)
			x0c, x1c := clampIndex(x0, inW), clampIndex(x0+1, inW)

			top := s[y0][x0c]*(1-fx) + s[y0][x1c]*fx
			bottom := s[y1][x0c]*(1-fx) + s[y1][x1c]*fx
			row[j] = top*(1-fy) + bottom*fy
		}
		out[i] = row
	}
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// MinMaxNormalize maps the matrix into [0, 1]. eps guards the division when
// all values are equal.
func MinMaxNormalize(s [][]float64, eps float64) [][]float64 {
	min, max := math.Inf(1), math.Inf(-1)
	for _, row := range s {
		for _, v := range row {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	out := make([][]float64, len(s))
	denom := max - min + eps
	for i, row := range s {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - min) / denom
		}
		out[i] = r
	}
	return out
}

package dsp

import "math"

// dctII applies the orthonormal DCT-II along the first axis and keeps the
// first nCoeffs rows. Input and output are column (frame) major on the
// second axis.
func dctII(s [][]float64, nCoeffs int) [][]float64 {
	n := len(s)
	if n == 0 {
		return nil
	}
	nFrames := len(s[0])
	if nCoeffs > n {
		nCoeffs = n
	}

	scale0 := math.Sqrt(1 / (4 * float64(n)))
	scale := math.Sqrt(1 / (2 * float64(n)))

	out := make([][]float64, nCoeffs)
	for k := 0; k < nCoeffs; k++ {
		row := make([]float64, nFrames)
		f := scale
		if k == 0 {
			f = scale0
		}
		for t := 0; t < nFrames; t++ {
			var acc float64
			for i := 0; i < n; i++ {
				acc += s[i][t] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
			}
			row[t] = 2 * f * acc
		}
		out[k] = row
	}
	return out
}

// MFCC computes nMFCC mel-frequency cepstral coefficients per frame,
// coefficient-major: result[coeff][frame].
func MFCC(samples []float64, sampleRate, nMFCC, nMels, fftSize, hop int) [][]float64 {
	mel := MelSpectrogram(samples, sampleRate, nMels, fftSize, hop)
	melDB := PowerToDB(mel, 1.0, 80)
	return dctII(melDB, nMFCC)
}

// PadFrames pads the time axis with zero-valued frames or truncates it so
// the matrix has exactly nFrames columns. Existing values are unchanged.
func PadFrames(s [][]float64, nFrames int) [][]float64 {
	out := make([][]float64, len(s))
	for i, row := range s {
		r := make([]float64, nFrames)
		copy(r, row)
		out[i] = r
	}
	return out
}

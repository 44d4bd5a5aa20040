// Package dsp implements the time-frequency analysis used by the
// classification pipelines: short-time Fourier transform, mel-scaled
// spectrograms and MFCC matrices with fixed frame geometry.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// HannWindow returns the periodic Hann window of the given size.
func HannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size)))
	}
	return w
}

// reflectPad mirrors pad samples on both ends of the signal. Signals too
// short to mirror fall back to zero padding.
func reflectPad(samples []float64, pad int) []float64 {
	out := make([]float64, 0, len(samples)+2*pad)
	if len(samples) <= 1 {
		out = append(out, make([]float64, pad)...)
		out = append(out, samples...)
		out = append(out, make([]float64, pad)...)
		return out
	}
	for i := pad; i >= 1; i-- {
		out = append(out, samples[reflectIndex(i, len(samples))])
	}
	out = append(out, samples...)
	for i := 1; i <= pad; i++ {
		out = append(out, samples[reflectIndex(len(samples)-1+i, len(samples))])
	}
	return out
}

// reflectIndex maps an out-of-range index into the signal by mirroring at
// the boundaries, matching numpy's reflect padding mode.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// FrameCount returns the number of analysis frames produced for a centered
// STFT over a signal of the given length.
func FrameCount(signalLen, fftSize, hop int) int {
	padded := signalLen + fftSize // fftSize/2 on each side
	if padded < fftSize {
		return 0
	}
	return 1 + (padded-fftSize)/hop
}

// PowerSpectrogram computes |STFT|^2 with a centered, Hann-windowed analysis.
// The result is time-major: frames[t][bin], bins = fftSize/2 + 1.
func PowerSpectrogram(samples []float64, fftSize, hop int) [][]float64 {
	padded := reflectPad(samples, fftSize/2)
	window := HannWindow(fftSize)
	fft := fourier.NewFFT(fftSize)

	nFrames := 0
	if len(padded) >= fftSize {
		nFrames = 1 + (len(padded)-fftSize)/hop
	}
	nBins := fftSize/2 + 1

	frames := make([][]float64, nFrames)
	buf := make([]float64, fftSize)
	for t := 0; t < nFrames; t++ {
		start := t * hop
		for i := 0; i < fftSize; i++ {
			buf[i] = padded[start+i] * window[i]
		}
		coeffs := fft.Coefficients(nil, buf)
		row := make([]float64, nBins)
		for b, c := range coeffs {
			re, im := real(c), imag(c)
			row[b] = re*re + im*im
		}
		frames[t] = row
	}
	return frames
}

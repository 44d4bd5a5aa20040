package dsp

import "math"

// hzToMel converts frequency to the Slaney mel scale: linear below 1 kHz,
// logarithmic above.
func hzToMel(hz float64) float64 {
	if hz < 1000 {
		return hz * 3 / 200
	}
	return 15 + 27*math.Log(hz/1000)/math.Log(6.4)
}

func melToHz(mel float64) float64 {
	if mel < 15 {
		return mel * 200 / 3
	}
	return 1000 * math.Exp(math.Log(6.4)*(mel-15)/27)
}

// MelFilterbank builds nMels triangular filters over the FFT bins, with
// Slaney-style bandwidth normalization. Result is [nMels][fftSize/2+1].
func MelFilterbank(nMels, fftSize, sampleRate int, fmin, fmax float64) [][]float64 {
	if fmax <= 0 {
		fmax = float64(sampleRate) / 2
	}
	nBins := fftSize/2 + 1

	melMin := hzToMel(fmin)
	melMax := hzToMel(fmax)
	melPoints := make([]float64, nMels+2)
	for i := range melPoints {
		mel := melMin + (melMax-melMin)*float64(i)/float64(nMels+1)
		melPoints[i] = melToHz(mel)
	}

	binFreqs := make([]float64, nBins)
	for b := range binFreqs {
		binFreqs[b] = float64(b) * float64(sampleRate) / float64(fftSize)
	}

	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		lower, center, upper := melPoints[m], melPoints[m+1], melPoints[m+2]
		norm := 2 / (upper - lower)
		row := make([]float64, nBins)
		for b, f := range binFreqs {
			switch {
			case f <= lower || f >= upper:
				row[b] = 0
			case f < center:
				row[b] = norm * (f - lower) / (center - lower)
			default:
				row[b] = norm * (upper - f) / (upper - center)
			}
		}
		filters[m] = row
	}
	return filters
}

// MelSpectrogram computes the mel-scaled power spectrogram, mel-major:
// result[mel][frame].
func MelSpectrogram(samples []float64, sampleRate, nMels, fftSize, hop int) [][]float64 {
	frames := PowerSpectrogram(samples, fftSize, hop)
	filters := MelFilterbank(nMels, fftSize, sampleRate, 0, float64(sampleRate)/2)

	out := make([][]float64, nMels)
	for m := range out {
		out[m] = make([]float64, len(frames))
	}
	for t, frame := range frames {
		for m, filter := range filters {
			var acc float64
			for b, w := range filter {
				if w != 0 {
					acc += w * frame[b]
				}
			}
			out[m][t] = acc
		}
	}
	return out
}

const powerFloor = 1e-10

// PowerToDB converts a power matrix to decibels relative to ref, clamping
// the dynamic range to topDB below the maximum. topDB <= 0 disables the clamp.
func PowerToDB(s [][]float64, ref, topDB float64) [][]float64 {
	if ref < powerFloor {
		ref = powerFloor
	}
	refDB := 10 * math.Log10(ref)

	out := make([][]float64, len(s))
	maxDB := math.Inf(-1)
	for i, row := range s {
		r := make([]float64, len(row))
		for j, v := range row {
			if v < powerFloor {
				v = powerFloor
			}
			db := 10*math.Log10(v) - refDB
			r[j] = db
			if db > maxDB {
				maxDB = db
			}
		}
		out[i] = r
	}
	if topDB > 0 {
		floor := maxDB - topDB
		for _, row := range out {
			for j, v := range row {
				if v < floor {
					row[j] = floor
				}
			}
		}
	}
	return out
}

// MaxOf returns the largest value in the matrix.
func MaxOf(s [][]float64) float64 {
	max := math.Inf(-1)
	for _, row := range s {
		for _, v := range row {
			if v > max {
				max = v
			}
		}
	}
	return max
}

// Package audio decodes uploaded recordings into mono float waveforms at a
// pipeline's target sample rate.
package audio

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// Waveform is an ordered sequence of mono samples in [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the waveform length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Load decodes a WAV or MP3 file into a mono waveform resampled to targetRate.
func Load(path string, targetRate int) (Waveform, error) {
	var (
		w   Waveform
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		w, err = loadMP3(path)
	default:
		w, err = loadWAV(path)
	}
	if err != nil {
		return Waveform{}, err
	}
	if targetRate > 0 && targetRate != w.SampleRate {
		w = Resample(w, targetRate)
	}
	return w, nil
}

func loadWAV(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return Waveform{}, fmt.Errorf("decode wav: empty or malformed file")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float64(channels)
	}

	return Waveform{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

func loadMP3(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("open mp3: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return Waveform{}, fmt.Errorf("decode mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return Waveform{}, fmt.Errorf("read mp3 pcm: %w", err)
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	frames := len(raw) / 4
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		left := int16(uint16(raw[i*4]) | uint16(raw[i*4+1])<<8)
		right := int16(uint16(raw[i*4+2]) | uint16(raw[i*4+3])<<8)
		samples[i] = (float64(left) + float64(right)) / 2 / 32768
	}

	return Waveform{Samples: samples, SampleRate: dec.SampleRate()}, nil
}

// Resample converts the waveform to targetRate with linear interpolation.
func Resample(w Waveform, targetRate int) Waveform {
	if w.SampleRate == targetRate || len(w.Samples) == 0 {
		return Waveform{Samples: w.Samples, SampleRate: targetRate}
	}
	ratio := float64(w.SampleRate) / float64(targetRate)
	outLen := int(math.Round(float64(len(w.Samples)) / ratio))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(w.Samples)-1 {
			out[i] = w.Samples[len(w.Samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = w.Samples[j]*(1-frac) + w.Samples[j+1]*frac
	}
	return Waveform{Samples: out, SampleRate: targetRate}
}

// FixLength pads the samples with trailing zeros or truncates them so the
// result has exactly n samples. Original samples keep their positions.
func FixLength(samples []float64, n int) []float64 {
	if len(samples) >= n {
		return samples[:n]
	}
	out := make([]float64, n)
	copy(out, samples)
	return out
}

// PeakNormalize scales the waveform by its peak absolute value. Silent input
// is returned unchanged.
func PeakNormalize(samples []float64) []float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return samples
	}
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s / peak
	}
	return out
}

// TrimSilenceDB removes leading and trailing samples more than topDB decibels
// below the waveform's peak amplitude. A fully silent waveform is returned
// as-is.
func TrimSilenceDB(samples []float64, topDB float64) []float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return samples
	}
	return TrimSilence(samples, peak*math.Pow(10, -topDB/20))
}

// TrimSilence removes leading and trailing samples below the amplitude
// threshold. A fully silent waveform is returned as-is.
func TrimSilence(samples []float64, threshold float64) []float64 {
	start := 0
	for start < len(samples) && math.Abs(samples[start]) < threshold {
		start++
	}
	if start == len(samples) {
		return samples
	}
	end := len(samples)
	for end > start && math.Abs(samples[end-1]) < threshold {
		end--
	}
	return samples[start:end]
}

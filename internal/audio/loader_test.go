package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeTestWAV(t *testing.T, path string, samples []float64, sampleRate, channels int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	data := make([]int, len(samples)*channels)
	for i, s := range samples {
		v := int(s * 32767)
		for c := 0; c < channels; c++ {
			data[i*channels+c] = v
		}
	}
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

func sine(n int, freq float64, sampleRate int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestLoadWAVMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	src := sine(16000, 440, 16000)
	writeTestWAV(t, path, src, 16000, 1)

	w, err := Load(path, 16000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if w.SampleRate != 16000 {
		t.Fatalf("expected 16000 Hz, got %d", w.SampleRate)
	}
	if len(w.Samples) != len(src) {
		t.Fatalf("expected %d samples, got %d", len(src), len(w.Samples))
	}
	for i := 0; i < 100; i++ {
		if math.Abs(w.Samples[i]-src[i]) > 1e-3 {
			t.Fatalf("sample %d decoded as %v, want %v", i, w.Samples[i], src[i])
		}
	}
}

func TestLoadWAVStereoMixdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeTestWAV(t, path, sine(8000, 220, 22050), 22050, 2)

	w, err := Load(path, 22050)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(w.Samples) != 8000 {
		t.Fatalf("expected 8000 mono frames, got %d", len(w.Samples))
	}
}

func TestLoadResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWAV(t, path, sine(44100, 440, 44100), 44100, 1)

	w, err := Load(path, 16000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if w.SampleRate != 16000 {
		t.Fatalf("expected resampled rate 16000, got %d", w.SampleRate)
	}
	want := 16000
	if w.Samples == nil || abs(len(w.Samples)-want) > 1 {
		t.Fatalf("expected about %d samples after resampling, got %d", want, len(w.Samples))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.wav"), 16000); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFixLengthPads(t *testing.T) {
	in := []float64{0.1, -0.2, 0.3}
	out := FixLength(in, 6)
	if len(out) != 6 {
		t.Fatalf("expected length 6, got %d", len(out))
	}
	for i, v := range in {
		if out[i] != v {
			t.Fatalf("sample %d changed: got %v want %v", i, out[i], v)
		}
	}
	for i := 3; i < 6; i++ {
		if out[i] != 0 {
			t.Fatalf("expected zero padding at %d, got %v", i, out[i])
		}
	}
}

func TestFixLengthTruncates(t *testing.T) {
	in := make([]float64, 100)
	for i := range in {
		in[i] = float64(i)
	}
	out := FixLength(in, 40)
	if len(out) != 40 {
		t.Fatalf("expected length 40, got %d", len(out))
	}
	if out[39] != 39 {
		t.Fatalf("expected original sample preserved, got %v", out[39])
	}
}

func TestPeakNormalize(t *testing.T) {
	out := PeakNormalize([]float64{0.1, -0.4, 0.2})
	peak := 0.0
	for _, s := range out {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-1.0) > 1e-12 {
		t.Fatalf("expected peak 1.0 after normalization, got %v", peak)
	}

	silent := PeakNormalize([]float64{0, 0, 0})
	for _, s := range silent {
		if s != 0 {
			t.Fatalf("silent waveform must stay silent, got %v", s)
		}
	}
}

func TestTrimSilenceDB(t *testing.T) {
	// Lead-in noise at -80 dB relative to the 0.5 peak is below the 60 dB
	// cut; the peak region survives untouched.
	in := []float64{5e-6, -5e-6, 0.5, 0.3, -0.5, 5e-6}
	out := TrimSilenceDB(in, 60)
	if len(out) != 3 || out[0] != 0.5 || out[2] != -0.5 {
		t.Fatalf("unexpected trim result: %v", out)
	}

	silent := []float64{0, 0, 0}
	if got := TrimSilenceDB(silent, 60); len(got) != 3 {
		t.Fatalf("fully silent input must be returned unchanged, got %v", got)
	}
}

func TestTrimSilence(t *testing.T) {
	in := []float64{0, 0, 0.5, 0.4, 0, 0}
	out := TrimSilence(in, 0.01)
	if len(out) != 2 || out[0] != 0.5 || out[1] != 0.4 {
		t.Fatalf("unexpected trim result: %v", out)
	}

	silent := []float64{0, 0, 0}
	if got := TrimSilence(silent, 0.01); len(got) != 3 {
		t.Fatalf("fully silent input must be returned unchanged, got %v", got)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

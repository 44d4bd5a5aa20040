package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/kavachlabs/kavach/internal/audio"
	"github.com/kavachlabs/kavach/internal/config"
	"github.com/kavachlabs/kavach/internal/dsp"
	"github.com/kavachlabs/kavach/internal/model"
	"github.com/kavachlabs/kavach/internal/tensor"
)

// MFCC pipeline parameters, fixed by the trained model.
const (
	mfccSampleRate  = 22050
	mfccDurationSec = 3.0
	mfccCoeffs      = 40
	mfccMelBands    = 128
	mfccFFTSize     = 2048
	mfccHopSize     = 512
	mfccFrames      = 130
	mfccTrimDB      = 60
)

// MFCC classifies audio through a 40x130 MFCC matrix in NHWC layout,
// matching the depthwise-separable CNN safety model. Its label table comes
// from an external class file.
type MFCC struct {
	interp model.Interpreter
	labels model.Table
	log    *slog.Logger
}

func NewMFCC(cfg config.PipelineConfig, log *slog.Logger) (*MFCC, error) {
	if cfg.LabelsPath == "" {
		return nil, fmt.Errorf("mfcc pipeline requires labels_path")
	}
	labels, err := model.LoadTable(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	spec := model.Spec{
		InputShape: []int{1, mfccCoeffs, mfccFrames, 1},
		Classes:    len(labels),
	}
	interp, err := model.New(cfg, spec, log)
	if err != nil {
		return nil, err
	}
	return &MFCC{interp: interp, labels: labels, log: log}, nil
}

func (p *MFCC) Name() string { return "mfcc" }

// Prepare turns a waveform into the model's expected rank-4 float tensor.
// Leading and trailing silence is trimmed, then the waveform is padded or
// truncated to exactly 3 seconds and the MFCC time axis to exactly 130
// frames; no min-max normalization is applied.
func (p *MFCC) Prepare(w audio.Waveform) (*tensor.Tensor, error) {
	if len(w.Samples) == 0 {
		return nil, fmt.Errorf("empty waveform")
	}
	targetLen := int(mfccSampleRate * mfccDurationSec)
	samples := audio.TrimSilenceDB(w.Samples, mfccTrimDB)
	samples = audio.FixLength(samples, targetLen)
	samples = audio.PeakNormalize(samples)

	m := dsp.MFCC(samples, mfccSampleRate, mfccCoeffs, mfccMelBands, mfccFFTSize, mfccHopSize)
	m = dsp.PadFrames(m, mfccFrames)

	t := tensor.New(1, mfccCoeffs, mfccFrames, 1)
	for i, row := range m {
		for j, v := range row {
			t.Data[i*mfccFrames+j] = float32(v)
		}
	}
	return t, nil
}

func (p *MFCC) Classify(path string) (Prediction, error) {
	w, err := audio.Load(path, mfccSampleRate)
	if err != nil {
		return Prediction{}, fmt.Errorf("load audio: %w", err)
	}
	p.log.Debug("audio decoded",
		slog.String("pipeline", p.Name()),
		slog.Float64("seconds", w.Duration()))

	t, err := p.Prepare(w)
	if err != nil {
		return Prediction{}, err
	}

	in, err := p.interp.InputInfo(0)
	if err != nil {
		return Prediction{}, err
	}
	if err := t.CheckShape(in.Shape); err != nil {
		return Prediction{}, err
	}

	if in.Type == model.Int8 {
		err = p.interp.SetInputInt8(0, tensor.Quantize(t.Data, in.Quant))
	} else {
		err = p.interp.SetInputFloat32(0, t.Data)
	}
	if err != nil {
		return Prediction{}, err
	}

	if err := p.interp.Invoke(); err != nil {
		return Prediction{}, err
	}

	out, err := p.interp.OutputInfo(0)
	if err != nil {
		return Prediction{}, err
	}
	var scores []float32
	if out.Type == model.Int8 {
		raw, err := p.interp.OutputInt8(0)
		if err != nil {
			return Prediction{}, err
		}
		scores = tensor.Dequantize(raw, out.Quant)
	} else {
		scores, err = p.interp.OutputFloat32(0)
		if err != nil {
			return Prediction{}, err
		}
	}

	// The trained model's head already emits probabilities; rescale to
	// guard against backends that return unnormalized scores.
	return interpret(p.Name(), normalize(scores), p.labels), nil
}

func (p *MFCC) Close() error { return p.interp.Close() }

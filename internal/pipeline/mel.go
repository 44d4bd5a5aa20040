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

// Mel pipeline parameters, fixed by the trained model.
const (
	melSampleRate = 16000
	melBands      = 64
	melFFTSize    = 1024
	melHopSize    = 512
	melImageSize  = 64
	melNormEps    = 1e-6
	melTopDB      = 80
)

// Mel classifies audio through a dB-scaled mel-spectrogram resized to a
// 64x64 image in NCHW layout, matching the int8 safety model.
type Mel struct {
	interp model.Interpreter
	labels model.Table
	log    *slog.Logger
}

func NewMel(cfg config.PipelineConfig, log *slog.Logger) (*Mel, error) {
	labels := model.BuiltinSafetyTable()
	if cfg.LabelsPath != "" {
		loaded, err := model.LoadTable(cfg.LabelsPath)
		if err != nil {
			return nil, err
		}
		labels = loaded
	}

	spec := model.Spec{
		InputShape: []int{1, 1, melImageSize, melImageSize},
		Classes:    len(labels),
	}
	interp, err := model.New(cfg, spec, log)
	if err != nil {
		return nil, err
	}
	return &Mel{interp: interp, labels: labels, log: log}, nil
}

func (p *Mel) Name() string { return "mel" }

// Prepare turns a waveform into the model's expected rank-4 float tensor.
func (p *Mel) Prepare(w audio.Waveform) (*tensor.Tensor, error) {
	if len(w.Samples) == 0 {
		return nil, fmt.Errorf("empty waveform")
	}
	samples := audio.PeakNormalize(w.Samples)

	mel := dsp.MelSpectrogram(samples, melSampleRate, melBands, melFFTSize, melHopSize)
	melDB := dsp.PowerToDB(mel, dsp.MaxOf(mel), melTopDB)
	resized := dsp.ResizeBilinear(melDB, melImageSize, melImageSize)
	normalized := dsp.MinMaxNormalize(resized, melNormEps)

	t := tensor.New(1, 1, melImageSize, melImageSize)
	for i, row := range normalized {
		for j, v := range row {
			t.Data[i*melImageSize+j] = float32(v)
		}
	}
	return t, nil
}

func (p *Mel) Classify(path string) (Prediction, error) {
	w, err := audio.Load(path, melSampleRate)
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
	// Shape validation happens before quantization.
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
	var logits []float32
	if out.Type == model.Int8 {
		raw, err := p.interp.OutputInt8(0)
		if err != nil {
			return Prediction{}, err
		}
		logits = tensor.Dequantize(raw, out.Quant)
	} else {
		logits, err = p.interp.OutputFloat32(0)
		if err != nil {
			return Prediction{}, err
		}
	}

	return interpret(p.Name(), softmax(logits), p.labels), nil
}

func (p *Mel) Close() error { return p.interp.Close() }

// interpret applies argmax over the probabilities and maps the winning index
// through the label table.
func interpret(name string, probs []float64, labels model.Table) Prediction {
	best := 0
	for i, v := range probs {
		if v > probs[best] {
			best = i
		}
	}
	labelled := make([]LabelProb, len(probs))
	for i, v := range probs {
		labelled[i] = LabelProb{Label: labels.Label(i), Prob: v}
	}
	safety := labels.Safety(best)
	var confidence float64
	if len(probs) > 0 {
		confidence = probs[best]
	}
	return Prediction{
		Pipeline:   name,
		Label:      labels.Label(best),
		Confidence: confidence,
		Safety:     safety,
		Code:       string(safety.Code()),
		Probs:      labelled,
	}
}

package mixer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	wav "github.com/youpy/go-wav"
	"go.uber.org/zap"
)

// Encoder compresses captured audio to opus. ffmpegx provides the
// production implementation; tests substitute failing ones.
type Encoder interface {
	EncodeOpus(ctx context.Context, inputPath string) (string, error)
	EncodePCM(ctx context.Context, pcm []byte, sampleRate int, outputPath string) error
}

// Input is one per-device capture to be mixed, with the wall-clock
// instant its capture began. Alignment is by start timestamp, never by
// content.
type Input struct {
	Path      string
	StartedAt time.Time
}

// Result holds the outputs of a merge.
type Result struct {
	MixedFile      string
	PerDeviceFiles []string
}

// Mixer merges per-device captures into one mono recording and
// transcodes everything to opus.
type Mixer struct {
	sampleRate int
	encoder    Encoder
	logger     *zap.Logger
}

// New creates a mixer targeting the given sample rate.
func New(sampleRate int, encoder Encoder, logger *zap.Logger) *Mixer {
	return &Mixer{sampleRate: sampleRate, encoder: encoder, logger: logger}
}

// Merge time-aligns and sums the inputs into outputBase+"_mixed.ogg"
// and transcodes each raw input independently so the unmixed
// recordings remain available. Raw WAV files are retained whenever
// encoding fails, so no audio is ever lost to an encoder problem.
func (m *Mixer) Merge(ctx context.Context, inputs []Input, outputBase string) (*Result, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input files to merge")
	}

	mixed, err := m.mixToPCM(inputs)
	if err != nil {
		return nil, err
	}

	// The mixed signal exists only in memory, so it is piped straight
	// into the encoder instead of going through a temporary WAV.
	mixedOgg := outputBase + "_mixed.ogg"
	if err := m.encoder.EncodePCM(ctx, pcmBytes(mixed), m.sampleRate, mixedOgg); err != nil {
		return nil, err
	}

	perDevice := make([]string, 0, len(inputs))
	for _, in := range inputs {
		ogg, err := m.encoder.EncodeOpus(ctx, in.Path)
		if err != nil {
			return nil, err
		}
		os.Remove(in.Path)
		perDevice = append(perDevice, ogg)
	}

	m.logger.Info("Merged recording",
		zap.Int("sources", len(inputs)),
		zap.String("output", mixedOgg))

	return &Result{MixedFile: mixedOgg, PerDeviceFiles: perDevice}, nil
}

// pcmBytes serializes samples as signed 16-bit little-endian, the
// layout the encoder expects on stdin.
func pcmBytes(pcm []int16) []byte {
	buf := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// mixToPCM decodes every input, resamples to the target rate, offsets
// each by its capture start delta and sums.
func (m *Mixer) mixToPCM(inputs []Input) ([]int16, error) {
	signals := make([][]int16, 0, len(inputs))
	offsets := make([]int, 0, len(inputs))

	earliest := inputs[0].StartedAt
	for _, in := range inputs[1:] {
		if in.StartedAt.Before(earliest) {
			earliest = in.StartedAt
		}
	}

	for _, in := range inputs {
		pcm, rate, err := ReadWAV(in.Path)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", in.Path, err)
		}
		if rate != m.sampleRate {
			pcm = Resample(pcm, rate, m.sampleRate)
		}
		signals = append(signals, pcm)
		delta := in.StartedAt.Sub(earliest)
		offsets = append(offsets, int(delta.Seconds()*float64(m.sampleRate)))
	}

	if len(signals) == 1 && offsets[0] == 0 {
		return signals[0], nil
	}
	return MixPCM(signals, offsets), nil
}

// MixPCM sums the signals sample-by-sample after shifting each by its
// offset in samples, clipping to the int16 range. Shorter or later
// streams contribute silence where they have no samples. The sum is
// deliberately unnormalized; reproducibility beats perceptual loudness
// here.
func MixPCM(signals [][]int16, offsets []int) []int16 {
	maxLen := 0
	for i, s := range signals {
		if n := offsets[i] + len(s); n > maxLen {
			maxLen = n
		}
	}

	out := make([]int16, maxLen)
	for i := range out {
		var sum int32
		for j, s := range signals {
			idx := i - offsets[j]
			if idx >= 0 && idx < len(s) {
				sum += int32(s[idx])
			}
		}
		if sum > math.MaxInt16 {
			sum = math.MaxInt16
		} else if sum < math.MinInt16 {
			sum = math.MinInt16
		}
		out[i] = int16(sum)
	}
	return out
}

// Resample converts PCM between sample rates by linear interpolation.
// Good enough for speech; captures are normally already at the target
// rate.
func Resample(pcm []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(pcm) == 0 {
		return pcm
	}
	outLen := int(float64(len(pcm)) * float64(toRate) / float64(fromRate))
	out := make([]int16, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx+1 >= len(pcm) {
			out[i] = pcm[len(pcm)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(pcm[idx])*(1-frac) + float64(pcm[idx+1])*frac)
	}
	return out
}

// ReadWAV decodes a mono 16-bit WAV file to PCM samples. Multi-channel
// files are reduced to their first channel.
func ReadWAV(path string) ([]int16, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("reading WAV format: %w", err)
	}

	var pcm []int16
	for {
		samples, err := reader.ReadSamples(4096)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading WAV samples: %w", err)
		}
		for _, s := range samples {
			pcm = append(pcm, int16(s.Values[0]))
		}
	}
	return pcm, int(format.SampleRate), nil
}

// WriteWAV writes mono 16-bit PCM to a WAV file.
func WriteWAV(path string, pcm []int16, sampleRate int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := wav.NewWriter(file, uint32(len(pcm)), 1, uint32(sampleRate), 16)
	samples := make([]wav.Sample, len(pcm))
	for i, v := range pcm {
		samples[i].Values[0] = int(v)
	}
	return writer.WriteSamples(samples)
}

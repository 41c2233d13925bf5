package ffmpegx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
)

// Encoder transcodes captured audio to OGG/Opus by invoking ffmpeg.
// Opus at a fixed speech bitrate keeps recordings an order of magnitude
// smaller than the raw PCM captures.
type Encoder struct {
	bitrate string
	logger  *zap.Logger
}

// NewEncoder creates an ffmpeg-backed opus encoder.
func NewEncoder(bitrate string, logger *zap.Logger) *Encoder {
	if bitrate == "" {
		bitrate = "64k"
	}
	return &Encoder{bitrate: bitrate, logger: logger}
}

// Available reports whether ffmpeg can be found on PATH.
func (e *Encoder) Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// EncodeOpus transcodes inputPath to an .ogg file next to it and
// returns the output path. The input file is left in place; callers
// decide when raw audio may be discarded.
func (e *Encoder) EncodeOpus(ctx context.Context, inputPath string) (string, error) {
	outputPath := replaceExt(inputPath, ".ogg")

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", inputPath,
		"-c:a", "libopus", "-b:a", e.bitrate,
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		e.logger.Error("ffmpeg encode failed",
			zap.String("input", inputPath),
			zap.String("stderr", stderr.String()),
			zap.Error(err))
		return "", &entities.EncodingError{Output: stderr.String(), Err: err}
	}

	e.logger.Debug("Encoded opus file",
		zap.String("input", inputPath),
		zap.String("output", outputPath))
	return outputPath, nil
}

// EncodePCM encodes raw signed 16-bit little-endian mono PCM from
// stdin to an .ogg file.
func (e *Encoder) EncodePCM(ctx context.Context, pcm []byte, sampleRate int, outputPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-f", "s16le", "-ar", fmt.Sprintf("%d", sampleRate), "-ac", "1", "-i", "-",
		"-c:a", "libopus", "-b:a", e.bitrate,
		outputPath,
	)
	cmd.Stdin = bytes.NewReader(pcm)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		e.logger.Error("ffmpeg PCM encode failed",
			zap.String("output", outputPath),
			zap.String("stderr", stderr.String()),
			zap.Error(err))
		return &entities.EncodingError{Output: stderr.String(), Err: err}
	}
	return nil
}

func replaceExt(path, ext string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndex(path, "/") {
		return path[:i] + ext
	}
	return path + ext
}

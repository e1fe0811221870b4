// Package media は音声ファイルの長さ取得と形式判定を提供します。
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

// ErrUnknownDuration は長さを判定できなかったことを表します。
var ErrUnknownDuration = errors.New("audio duration unknown")

// Prober は音声ファイルの長さ（秒）を返します。
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFProbe は ffprobe を使って長さを取得します。
type FFProbe struct {
	Binary string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration は ffprobe の format.duration を返します。
func (p FFProbe) Duration(ctx context.Context, path string) (float64, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return 0, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseFFProbeDuration(output)
}

func parseFFProbeDuration(output []byte) (float64, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	raw := strings.TrimSpace(parsed.Format.Duration)
	if raw == "" || raw == "N/A" {
		return 0, ErrUnknownDuration
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil || d < 0 {
		return 0, ErrUnknownDuration
	}
	return d, nil
}

// WAVProbe は WAV ヘッダーから長さを計算します。
type WAVProbe struct{}

// Duration は WAV ファイルの再生時間を返します。
func (WAVProbe) Duration(ctx context.Context, path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("not a valid wav file: %s", path)
	}
	if err := decoder.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("wav data chunk: %w", err)
	}
	bytesPerSec := float64(decoder.AvgBytesPerSec)
	if bytesPerSec == 0 {
		bytesPerSec = float64(decoder.SampleRate) * float64(decoder.NumChans) * float64(decoder.BitDepth) / 8
	}
	if bytesPerSec == 0 {
		return 0, ErrUnknownDuration
	}
	return float64(decoder.PCMLen()) / bytesPerSec, nil
}

// ChainProber は WAV なら WAVProbe を先に、それ以外は Fallback を使います。
type ChainProber struct {
	WAV      Prober
	Fallback Prober
}

// NewProber は本番用の Prober を作成します。
func NewProber(ffprobePath string) *ChainProber {
	return &ChainProber{
		WAV:      WAVProbe{},
		Fallback: FFProbe{Binary: ffprobePath},
	}
}

// Duration は形式に応じて適切な方法で長さを取得します。
func (c *ChainProber) Duration(ctx context.Context, path string) (float64, error) {
	var errs []error
	if c.WAV != nil && IsWAV(path) {
		d, err := c.WAV.Duration(ctx, path)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	if c.Fallback != nil {
		d, err := c.Fallback.Duration(ctx, path)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return 0, ErrUnknownDuration
	}
	return 0, errors.Join(errs...)
}

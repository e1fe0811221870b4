package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// commandRunner は外部コマンド実行を抽象化します（テスト用）。
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.String(), err
}

// DurationProber は音声の長さを返せる型が実装します。
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// WhisperCPPOptions は WhisperCPPEngine の設定です。
type WhisperCPPOptions struct {
	WhisperPath string
	ModelPath   string
	FFmpegPath  string
	Prober      DurationProber
}

// WhisperCPPEngine はローカルの whisper.cpp で文字起こしします。
type WhisperCPPEngine struct {
	opts   WhisperCPPOptions
	runner commandRunner
}

// NewWhisperCPPEngine は WhisperCPPEngine を作成します。
func NewWhisperCPPEngine(opts WhisperCPPOptions) *WhisperCPPEngine {
	if opts.WhisperPath == "" {
		opts.WhisperPath = "whisper-cli"
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	return &WhisperCPPEngine{opts: opts, runner: execRunner{}}
}

// whisperJSON は whisper.cpp の -oj 出力です。
type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe は ffmpeg で 16kHz モノラル WAV に変換してから whisper.cpp を実行します。
func (e *WhisperCPPEngine) Transcribe(ctx context.Context, path, language string) (*Output, error) {
	if strings.TrimSpace(e.opts.ModelPath) == "" {
		return nil, &EngineError{Stage: "transcribe", Message: "whisper model path is required"}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &EngineError{Stage: "preprocess", Message: fmt.Sprintf("cannot access input: %s", path), Err: err}
	}

	tempDir, err := os.MkdirTemp("", "voiceshape-whisper-*")
	if err != nil {
		return nil, &EngineError{Stage: "preprocess", Message: "failed to create temporary workspace", Err: err}
	}
	defer os.RemoveAll(tempDir)

	wavPath := filepath.Join(tempDir, "audio-16k-mono.wav")
	if out, err := e.runner.Run(ctx, e.opts.FFmpegPath, ffmpegArgs(path, wavPath)...); err != nil {
		return nil, &EngineError{Stage: "preprocess", Message: "ffmpeg conversion failed: " + strings.TrimSpace(out), Err: err}
	}

	base := filepath.Join(tempDir, "transcript")
	if out, err := e.runner.Run(ctx, e.opts.WhisperPath, whisperArgs(e.opts.ModelPath, wavPath, base, language)...); err != nil {
		return nil, &EngineError{Stage: "transcribe", Message: "whisper.cpp failed: " + strings.TrimSpace(out), Err: err}
	}

	data, err := os.ReadFile(base + ".json")
	if err != nil {
		return nil, &EngineError{Stage: "transcribe", Message: "whisper.cpp output is missing", Err: err}
	}
	out, err := parseWhisperJSON(data)
	if err != nil {
		return nil, &EngineError{Stage: "transcribe", Message: "failed to parse whisper.cpp output", Err: err}
	}

	if e.opts.Prober != nil {
		if d, err := e.opts.Prober.Duration(ctx, path); err == nil && d > 0 {
			out.Duration = d
		}
	}
	return out, nil
}

func parseWhisperJSON(data []byte) (*Output, error) {
	var parsed whisperJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	if parsed.Transcription == nil && parsed.Result.Language == "" {
		return nil, errors.New("unexpected whisper.cpp json layout")
	}

	out := &Output{
		Segments: make([]Segment, 0, len(parsed.Transcription)),
		Language: parsed.Result.Language,
	}
	var text strings.Builder
	for _, item := range parsed.Transcription {
		seg := Segment{
			Start: float64(item.Offsets.From) / 1000,
			End:   float64(item.Offsets.To) / 1000,
			Text:  item.Text,
		}
		out.Segments = append(out.Segments, seg)
		text.WriteString(item.Text)
		if seg.End > out.Duration {
			out.Duration = seg.End
		}
	}
	out.Text = strings.TrimSpace(text.String())
	return out, nil
}

// normalizeLanguage は "auto" と空文字を指定なしとして扱います。
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

func ffmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func whisperArgs(modelPath, audioPath, outBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}

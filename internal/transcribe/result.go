// Package transcribe は音声ファイルを字幕付きの文字起こし結果に変換するエンジンを提供します。
package transcribe

import (
	"context"
	"fmt"
	"strings"
)

// Engine は音声ファイルを文字起こしする外部コラボレーターです。
// プロセスごとに一度だけ生成し、ジョブ間で共有します。
type Engine interface {
	Transcribe(ctx context.Context, path, language string) (*Output, error)
}

// Segment はエンジンが返す1区間分の生データです（秒単位の浮動小数点）。
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Output はエンジンの生出力です。
// Subtitles は整形済みの字幕を返すエンジン用で、Segments が空のときだけ使われます。
type Output struct {
	Text      string     `json:"text"`
	Segments  []Segment  `json:"segments"`
	Subtitles []Subtitle `json:"subtitles,omitempty"`
	Duration  float64    `json:"duration"`
	Language  string     `json:"language"`
}

// Subtitle は表示用に整形された字幕です。
type Subtitle struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

// Result はクライアントに返す文字起こし結果です。
type Result struct {
	Text      string     `json:"text"`
	Subtitles []Subtitle `json:"subtitles"`
	Duration  float64    `json:"duration"`
	Language  string     `json:"language"`
}

// Normalize はエンジン出力を字幕リストに整形します。
// 区間の順序はエンジンの出力順のまま保持し、空テキストの区間も残します。
func Normalize(out *Output) *Result {
	if out == nil {
		return &Result{Subtitles: []Subtitle{}}
	}
	if len(out.Segments) == 0 && len(out.Subtitles) > 0 {
		subtitles := make([]Subtitle, 0, len(out.Subtitles))
		for _, sub := range out.Subtitles {
			sub.Text = strings.TrimSpace(sub.Text)
			subtitles = append(subtitles, sub)
		}
		return &Result{
			Text:      out.Text,
			Subtitles: subtitles,
			Duration:  out.Duration,
			Language:  out.Language,
		}
	}

	subtitles := make([]Subtitle, 0, len(out.Segments))
	for _, seg := range out.Segments {
		subtitles = append(subtitles, Subtitle{
			Start: FormatTimestamp(seg.Start),
			End:   FormatTimestamp(seg.End),
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	return &Result{
		Text:      out.Text,
		Subtitles: subtitles,
		Duration:  out.Duration,
		Language:  out.Language,
	}
}

// FormatTimestamp は秒数を整数秒に切り捨てて H:MM:SS 形式にします。
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

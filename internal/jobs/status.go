package jobs

import (
	"github.com/ryu655/voiceshape-clean/internal/transcribe"
)

// レスポンスの status 値
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusNotFound   = "not_found"
)

// StatusView は GET /result/:id のレスポンスです。
type StatusView struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	Data     any      `json:"data,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// FailurePayload は失敗時の data です。subtitles は常に空配列です。
type FailurePayload struct {
	Error     string                `json:"error"`
	Subtitles []transcribe.Subtitle `json:"subtitles"`
}

// ViewFromState は状態をレスポンス形式に変換します。
func ViewFromState(state State) *StatusView {
	switch state.Kind {
	case StateCompleted:
		return &StatusView{Status: StatusCompleted, Data: state.Result}
	case StateFailed:
		msg := failureMessage(state.Error)
		return &StatusView{
			Status:  StatusError,
			Message: msg,
			Data: &FailurePayload{
				Error:     msg,
				Subtitles: []transcribe.Subtitle{},
			},
		}
	case StateInProgress:
		progress := state.Progress
		return &StatusView{Status: StatusProcessing, Progress: &progress}
	default:
		progress := 0.0
		return &StatusView{Status: StatusProcessing, Progress: &progress}
	}
}

// NotFoundView は存在しないジョブのビューを返します。
func NotFoundView() *StatusView {
	return &StatusView{Status: StatusNotFound, Message: "File not found"}
}

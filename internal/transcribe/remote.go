package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxErrorBody = 4096

// RemoteEngine は HTTP 経由で文字起こしサービスを呼び出します。
type RemoteEngine struct {
	url    string
	client *http.Client
}

// NewRemoteEngine は RemoteEngine を作成します。timeout が0以下ならタイムアウトなしです。
func NewRemoteEngine(url string, timeout time.Duration) *RemoteEngine {
	return &RemoteEngine{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

// NewRemoteEngineWithClient はテスト用に HTTP クライアントを差し替えます。
func NewRemoteEngineWithClient(url string, client *http.Client) *RemoteEngine {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteEngine{url: strings.TrimSpace(url), client: client}
}

type remoteResponse struct {
	Output
	Error string `json:"error"`
}

// Transcribe はファイルを multipart で送信し、結果を受け取ります。
func (e *RemoteEngine) Transcribe(ctx context.Context, path, language string) (*Output, error) {
	if e.url == "" {
		return nil, &EngineError{Stage: "request", Message: "engine url is not configured"}
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, &EngineError{Stage: "request", Message: "cannot open audio file", Err: err}
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(writer, file, filepath.Base(path), language))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, pr)
	if err != nil {
		pr.Close()
		return nil, &EngineError{Stage: "request", Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &EngineError{Stage: "request", Message: "engine request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &EngineError{
			Stage:   "response",
			Message: fmt.Sprintf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &EngineError{Stage: "response", Message: "failed to decode engine response", Err: err}
	}
	if decoded.Error != "" {
		return nil, &EngineError{Stage: "transcribe", Message: decoded.Error}
	}

	out := decoded.Output
	if out.Segments == nil && out.Subtitles == nil && strings.TrimSpace(out.Text) != "" {
		return nil, &EngineError{Stage: "response", Message: "engine response has text but neither segments nor subtitles"}
	}
	if out.Segments == nil {
		out.Segments = []Segment{}
	}
	return &out, nil
}

func writeMultipart(writer *multipart.Writer, src io.Reader, filename, language string) error {
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return err
		}
	}
	return writer.Close()
}

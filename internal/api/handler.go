// Package api は文字起こしサービスの HTTP ハンドラーを提供します。
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/ryu655/voiceshape-clean/internal/jobs"
)

// multipart のヘッダーや他フィールドのための余裕
const multipartOverhead = 1 << 20

// JobService はハンドラーが利用するジョブ操作です。
type JobService interface {
	Submit(ctx context.Context, sub jobs.Submission) (*jobs.SubmitOutcome, error)
	Confirm(ctx context.Context, jobID string) (bool, error)
	Status(ctx context.Context, jobID string) (*jobs.StatusView, error)
}

// Handler は HTTP リクエストをジョブ操作に変換します。
type Handler struct {
	jobs        JobService
	maxFileSize int64
	logger      *slog.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(svc JobService, maxFileSize int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{jobs: svc, maxFileSize: maxFileSize, logger: logger}
}

// Register はルートを登録します。セッションミドルウェアが先に登録されている必要があります。
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.POST("/upload", h.Upload)
	r.POST("/pay", h.Confirm)
	r.POST("/confirm", h.Confirm)
	r.GET("/result/:id", h.Result)
	r.GET("/history", h.History)
}

// Health はヘルスチェックのハンドラーです。
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "voiceshape-api",
	})
}

// Upload は POST /upload のハンドラーです。
func (h *Handler) Upload(c *gin.Context) {
	if h.maxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+multipartOverhead)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondWithError(c, newError("LIMIT_EXCEEDED", "File too large"))
		case errors.Is(err, http.ErrMissingFile):
			respondWithError(c, newError("INVALID_INPUT", "No file part"))
		default:
			respondWithError(c, newError("INVALID_INPUT", "multipart/form-data で file を送信してください。"))
		}
		return
	}
	if strings.TrimSpace(fileHeader.Filename) == "" {
		respondWithError(c, newError("INVALID_INPUT", "No selected file"))
		return
	}
	if h.maxFileSize > 0 && fileHeader.Size > h.maxFileSize {
		respondWithError(c, newError("LIMIT_EXCEEDED", "File too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondWithError(c, err)
		return
	}
	defer file.Close()

	outcome, err := h.jobs.Submit(c.Request.Context(), jobs.Submission{
		Filename: fileHeader.Filename,
		Body:     file,
		Language: c.PostForm("language"),
	})
	if err != nil {
		h.logger.Warn("upload rejected", "filename", fileHeader.Filename, "error", err)
		respondWithError(c, err)
		return
	}

	if err := rememberJob(c, outcome.JobID); err != nil {
		h.logger.Warn("failed to save session history", "job_id", outcome.JobID, "error", err)
	}

	payload := gin.H{
		"need_payment": outcome.NeedsConfirmation,
		"file_id":      outcome.JobID,
	}
	if outcome.Duration != nil {
		payload["duration"] = *outcome.Duration
	}
	c.JSON(http.StatusOK, payload)
}

type confirmRequest struct {
	FileID string `json:"file_id" binding:"required"`
}

// Confirm は POST /pay と POST /confirm のハンドラーです。確認待ちのジョブを開始します。
func (h *Handler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.FileID) == "" {
		respondWithError(c, newError("INVALID_INPUT", "file_id is required"))
		return
	}

	dispatched, err := h.jobs.Confirm(c.Request.Context(), strings.TrimSpace(req.FileID))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"dispatched": dispatched,
	})
}

// Result は GET /result/:id のハンドラーです。ワーカーの完了を待たずに現在の状態を返します。
func (h *Handler) Result(c *gin.Context) {
	view, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to read job state", "job_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, &jobs.StatusView{
			Status:  jobs.StatusError,
			Message: "ジョブ情報の取得に失敗しました。",
		})
		return
	}
	if view.Status == jobs.StatusNotFound {
		c.JSON(http.StatusNotFound, view)
		return
	}
	c.JSON(http.StatusOK, view)
}

// History は GET /history のハンドラーです。
func (h *Handler) History(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"files": readHistory(sessions.Default(c)),
	})
}

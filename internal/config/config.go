// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// ストアのバックエンド種別
const (
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"
)

// ジョブ実行方式
const (
	ExecutorGoroutine = "goroutine"
	ExecutorAsynq     = "asynq"
)

// 文字起こしエンジン種別
const (
	EngineRemote     = "remote"
	EngineWhisperCPP = "whispercpp"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port          string // APIサーバーのポート番号
	GinMode       string // Ginの実行モード (debug, release, test)
	SessionSecret string // セッションCookie署名用の秘密鍵
	StaticDir     string // 静的ファイルのディレクトリ（空なら配信しない）

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// アップロード設定
	UploadDir   string // アップロードとジョブ記録の保存先
	MaxFileSize int64  // 単一ファイルの最大サイズ（バイト）

	// 課金ゲート設定
	DurationThresholdSeconds float64 // これを超える音声は確認後に処理する（0で無効）
	DefaultLanguage          string  // 言語指定がない場合の既定値

	// ジョブ設定
	StoreBackend      string // file または redis
	RedisURL          string // Redis接続URL（redis ストア / asynq 用）
	JobExpireMinutes  int    // Redis上のジョブ記録の有効期限（分、0で無期限）
	Executor          string // goroutine または asynq
	WorkerConcurrency int    // 同時に実行するジョブ数の上限（0で無制限）

	// 文字起こしエンジン設定
	Engine               string // remote または whispercpp
	EngineURL            string // リモートエンジンのURL
	EngineTimeoutSeconds int    // リモートエンジン呼び出しのタイムアウト（秒）
	WhisperPath          string // whisper.cpp 実行ファイルのパス
	WhisperModel         string // whisper.cpp モデルファイルのパス
	FFmpegPath           string // ffmpeg 実行ファイルのパス
	FFprobePath          string // ffprobe 実行ファイルのパス
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:          getEnv("PORT", "5000"),
		GinMode:       getEnv("GIN_MODE", "debug"),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		StaticDir:     getEnv("STATIC_DIR", ""),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		// アップロード設定
		UploadDir:   getEnv("UPLOAD_DIR", "/tmp/uploads"),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 524288000), // 500MB

		// 課金ゲート設定
		DurationThresholdSeconds: getEnvAsFloat("DURATION_THRESHOLD_SECONDS", 300),
		DefaultLanguage:          getEnv("DEFAULT_LANGUAGE", "ja"),

		// ジョブ設定
		StoreBackend:      getEnv("STORE_BACKEND", StoreBackendFile),
		RedisURL:          getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		JobExpireMinutes:  getEnvAsInt("JOB_EXPIRE_MINUTES", 0),
		Executor:          getEnv("EXECUTOR", ExecutorGoroutine),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 2),

		// 文字起こしエンジン設定
		Engine:               getEnv("ENGINE", EngineRemote),
		EngineURL:            getEnv("ENGINE_URL", ""),
		EngineTimeoutSeconds: getEnvAsInt("ENGINE_TIMEOUT_SECONDS", 3600),
		WhisperPath:          getEnv("WHISPER_PATH", "whisper-cli"),
		WhisperModel:         getEnv("WHISPER_MODEL", ""),
		FFmpegPath:           getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:          getEnv("FFPROBE_PATH", "ffprobe"),
	}

	if config.SessionSecret == "" && config.GinMode != "release" {
		config.SessionSecret = "voiceshape-dev-secret"
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendFile, StoreBackendRedis:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q (got %q)", StoreBackendFile, StoreBackendRedis, c.StoreBackend)
	}
	switch c.Executor {
	case ExecutorGoroutine, ExecutorAsynq:
	default:
		return fmt.Errorf("EXECUTOR must be %q or %q (got %q)", ExecutorGoroutine, ExecutorAsynq, c.Executor)
	}
	switch c.Engine {
	case EngineRemote, EngineWhisperCPP:
	default:
		return fmt.Errorf("ENGINE must be %q or %q (got %q)", EngineRemote, EngineWhisperCPP, c.Engine)
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}
	if c.DurationThresholdSeconds < 0 {
		return fmt.Errorf("DURATION_THRESHOLD_SECONDS must not be negative")
	}
	if (c.StoreBackend == StoreBackendRedis || c.Executor == ExecutorAsynq) && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for redis store or asynq executor")
	}

	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.Engine == EngineRemote && c.EngineURL == "" {
			return fmt.Errorf("ENGINE_URL is required in release mode")
		}
		if c.Engine == EngineWhisperCPP && c.WhisperModel == "" {
			return fmt.Errorf("WHISPER_MODEL is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します。
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

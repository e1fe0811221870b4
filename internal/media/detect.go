package media

import (
	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// DetectContentType はファイル先頭のシグネチャから MIME タイプを判定します。
func DetectContentType(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil || mtype == nil {
		return defaultContentType
	}
	return mtype.String()
}

// IsWAV はファイルが WAV 形式かどうかを返します。
func IsWAV(path string) bool {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	return mtype.Is("audio/wav")
}

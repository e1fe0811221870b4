// Package testsupport はテスト用のファイル生成ヘルパーを提供します。
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SilentWAVRate はテスト用 WAV のサンプルレートです。
const SilentWAVRate = 8000

// WriteSilentWAV は指定秒数の無音モノラル16bit WAV を書き出します。
func WriteSilentWAV(t testing.TB, path string, seconds int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, SilentWAVRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: SilentWAVRate},
		Data:           make([]int, SilentWAVRate*seconds),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav %s: %v", path, err)
	}
}

// SilentWAVBytes は WriteSilentWAV と同じ内容をバイト列で返します。
func SilentWAVBytes(t testing.TB, seconds int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "silent.wav")
	WriteSilentWAV(t, path, seconds)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

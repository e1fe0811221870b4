package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryu655/voiceshape-clean/internal/testsupport"
)

type stubProber struct {
	d     float64
	err   error
	calls int
}

func (s *stubProber) Duration(ctx context.Context, path string) (float64, error) {
	s.calls++
	return s.d, s.err
}

func TestWAVProbeDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silent.wav")
	testsupport.WriteSilentWAV(t, path, 10)

	d, err := WAVProbe{}.Duration(context.Background(), path)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, d, 0.01)
}

func TestWAVProbeRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o640))

	_, err := WAVProbe{}.Duration(context.Background(), path)
	assert.Error(t, err)
}

func TestChainProberPrefersWAVHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silent.wav")
	testsupport.WriteSilentWAV(t, path, 3)
	fallback := &stubProber{d: 99}

	d, err := (&ChainProber{WAV: WAVProbe{}, Fallback: fallback}).Duration(context.Background(), path)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d, 0.01)
	assert.Equal(t, 0, fallback.calls)
}

func TestChainProberFallsBackForOtherFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3\x03\x00\x00\x00\x00\x00\x00"), 0o640))
	fallback := &stubProber{d: 42.5}

	d, err := (&ChainProber{WAV: WAVProbe{}, Fallback: fallback}).Duration(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 42.5, d)
	assert.Equal(t, 1, fallback.calls)
}

func TestChainProberJoinsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.bin")
	require.NoError(t, os.WriteFile(path, []byte{0, 1, 2}, 0o640))
	boom := errors.New("ffprobe missing")

	_, err := (&ChainProber{Fallback: &stubProber{err: boom}}).Duration(context.Background(), path)
	assert.ErrorIs(t, err, boom)
}

func TestParseFFProbeDuration(t *testing.T) {
	d, err := parseFFProbeDuration([]byte(`{"format":{"duration":"10.031000"}}`))
	require.NoError(t, err)
	assert.InDelta(t, 10.031, d, 1e-9)

	_, err = parseFFProbeDuration([]byte(`{"format":{"duration":"N/A"}}`))
	assert.ErrorIs(t, err, ErrUnknownDuration)

	_, err = parseFFProbeDuration([]byte(`not json`))
	assert.Error(t, err)
}

func TestDetectContentType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silent.wav")
	testsupport.WriteSilentWAV(t, path, 1)

	assert.True(t, IsWAV(path))
	assert.Contains(t, DetectContentType(path), "wav")
	assert.Equal(t, defaultContentType, DetectContentType(filepath.Join(t.TempDir(), "missing")))
}

package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestApplyClampsRanges(t *testing.T) {
	s := Defaults().Apply(Patch{
		VoiceRate:      ptr(3.0),
		VoicePitch:     ptr(0.1),
		VoiceVolume:    ptr(-1.0),
		MicSensitivity: ptr(1.5),
	})

	assert.Equal(t, 2.0, s.VoiceRate)
	assert.Equal(t, 0.5, s.VoicePitch)
	assert.Equal(t, 0.0, s.VoiceVolume)
	assert.Equal(t, 1.0, s.MicSensitivity)
}

func TestApplyKeepsUnsetFields(t *testing.T) {
	base := Defaults()
	s := base.Apply(Patch{HighContrast: ptr(true), SelectedVoice: ptr("Luciana")})

	assert.True(t, s.HighContrast)
	assert.Equal(t, "Luciana", s.SelectedVoice)
	assert.Equal(t, base.VoiceRate, s.VoiceRate)
	assert.Equal(t, base.EnableTTS, s.EnableTTS)
}

func TestLoadFileMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("voiceRate: 1.5\ncontinuousListening: true\nvoiceVolume: 9\n"), 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 1.5, s.VoiceRate)
	assert.True(t, s.ContinuousListening)
	assert.Equal(t, 1.0, s.VoiceVolume)
	assert.Equal(t, 0.9, s.VoicePitch)
	assert.True(t, s.EnableTTS)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("voiceRate: [oops"), 0o600))
	_, err = LoadFile(path)
	require.Error(t, err)
}

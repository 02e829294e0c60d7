package naming

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var allowed = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "podcast", "podcast"},
		{"spaces", "meu corte legal", "meu_corte_legal"},
		{"punctuation", "Live @ Rock in Rio! (2019)", "Live__Rock_in_Rio_2019"},
		{"accents", "Canção do Mar", "Cancao_do_Mar"},
		{"emoji only", "🎵🎶", ""},
		{"separators kept", "a-b_c", "a-b_c"},
		{"path traversal", "../../etc/passwd", "etcpasswd"},
		{"tabs", "a\tb", "a_b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Properties(t *testing.T) {
	inputs := []string{
		strings.Repeat("x", 200),
		strings.Repeat("é", 120),
		"日本語のタイトル 🎧 with mixed ascii",
		"<script>alert(1)</script>",
		"\x00\x01 control chars",
	}

	for _, in := range inputs {
		out := Sanitize(in)
		assert.LessOrEqual(t, len(out), MaxNameLength, "input %q", in)
		assert.Regexp(t, allowed, out, "input %q", in)
		assert.Equal(t, out, Sanitize(in), "deterministic")
	}
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "meu_corte_ab12cd34.mp3", ArtifactName("meu corte", "Título", "ab12cd34"))
	assert.Equal(t, "Titulo_ab12cd34.mp3", ArtifactName("  ", "Título", "ab12cd34"))
	assert.Equal(t, "audio_ab12cd34.mp3", ArtifactName("", "🎵", "ab12cd34"))
}

func TestIsArtifactOf(t *testing.T) {
	assert.True(t, IsArtifactOf("song_ab12cd34.mp3", "ab12cd34"))
	assert.True(t, IsArtifactOf("ab12cd34.mp3", "ab12cd34"))
	assert.False(t, IsArtifactOf("song_ab12cd345.mp3", "ab12cd34"))
	assert.False(t, IsArtifactOf("song_ab12cd34.m4a", "ab12cd34"))
	assert.False(t, IsArtifactOf("anything.mp3", ""))
}

func TestIsTempOf(t *testing.T) {
	assert.True(t, IsTempOf("temp_ab12_0.m4a", "ab12"))
	assert.True(t, IsTempOf("temp_ab12.webm", "ab12"))
	assert.False(t, IsTempOf("temp_ab123_0.m4a", "ab12"))
	assert.False(t, IsTempOf("song_ab12.mp3", "ab12"))
	assert.Equal(t, "temp_ab12_3", TempPrefix("ab12", 3))
}

// Package naming holds the filename rules shared by the pipeline, the
// orchestrator and the filesystem registry.
package naming

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is the maximum length of a sanitized name.
const MaxNameLength = 50

// ArtifactExt is the extension of every final artifact.
const ArtifactExt = ".mp3"

// FallbackBase is used when neither a custom name nor a title survives sanitizing.
const FallbackBase = "audio"

// Sanitize reduces arbitrary text to a filesystem-safe token made of ASCII
// letters, digits, '-' and '_'. Whitespace becomes '_', accents are folded
// ("canção" -> "cancao") and everything else is dropped. The result is at
// most MaxNameLength characters; an empty result means nothing usable was left.
func Sanitize(name string) string {
	if name == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range norm.NFD.String(name) {
		if b.Len() >= MaxNameLength {
			break
		}
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	return b.String()
}

// TempPrefix is the file prefix for one acquisition attempt of a job.
func TempPrefix(jobID string, attempt int) string {
	return fmt.Sprintf("temp_%s_%d", jobID, attempt)
}

// JobTempPrefix matches every temporary file of a job.
func JobTempPrefix(jobID string) string {
	return "temp_" + jobID
}

// ArtifactName builds the final filename: custom name, else title, else the
// generic fallback, always suffixed with the job id.
func ArtifactName(customName, title, jobID string) string {
	base := Sanitize(strings.TrimSpace(customName))
	if base == "" {
		base = Sanitize(strings.TrimSpace(title))
	}
	if base == "" {
		base = FallbackBase
	}
	return base + "_" + jobID + ArtifactExt
}

// IsArtifactOf reports whether filename is the final artifact of jobID.
func IsArtifactOf(filename, jobID string) bool {
	if jobID == "" {
		return false
	}
	return strings.HasSuffix(filename, "_"+jobID+ArtifactExt) || filename == jobID+ArtifactExt
}

// IsTempOf reports whether filename is a temporary download of jobID.
// The separator check keeps "temp_ab" from matching "temp_abc_0.m4a".
func IsTempOf(filename, jobID string) bool {
	prefix := JobTempPrefix(jobID)
	if !strings.HasPrefix(filename, prefix) {
		return false
	}
	rest := filename[len(prefix):]
	return rest == "" || rest[0] == '_' || rest[0] == '.'
}

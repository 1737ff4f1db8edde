package pipeline

import (
	"path/filepath"
	"sort"
	"strings"
)

var supportedFormats = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".flac": true,
	".wav":  true,
	".webm": true,
	".opus": true,
	".mp4":  true,
	".mpeg": true,
	".mpga": true,
}

// IsSupportedFormat checks the file extension against the formats the
// transcription endpoint accepts.
func IsSupportedFormat(name string) bool {
	return supportedFormats[strings.ToLower(filepath.Ext(name))]
}

func SupportedFormats() []string {
	out := make([]string, 0, len(supportedFormats))
	for ext := range supportedFormats {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(out)
	return out
}

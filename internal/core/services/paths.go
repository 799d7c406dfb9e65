package services

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

var unsafeChars = regexp.MustCompile(`[\\/:*?"<>|\s]+`)

// MaxNameBytes caps a stored file name. Most filesystems allow 255 bytes;
// the rest is left for the temporary name used while writing.
const MaxNameBytes = 200

// maxExtBytes is the longest suffix still treated as an extension when
// a name is shortened.
const maxExtBytes = 16

// SanitizeFileName makes a name safe on every common filesystem.
// Runs of path separators, reserved characters and whitespace become a
// single underscore. Returns "file" when nothing usable remains.
func SanitizeFileName(name string) string {
	safe := strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
	if safe == "" {
		return "file"
	}
	return safe
}

// LocalPath returns the deterministic path of a record's binary,
// relative to the export root. Files are sharded into subdirectories
// named after the first two characters of the file name.
func LocalPath(rec domain.FileRecord) string {
	var name string
	switch rec.Kind {
	case domain.KindLegacyAttachment:
		title := rec.Title
		if title == "" {
			title = "attachment"
		}
		name = rec.ID + "_" + SanitizeFileName(title)
	default:
		prefix := rec.DocumentID
		if prefix == "" {
			prefix = rec.ID
		}
		title := strings.TrimSuffix(rec.Title, "."+rec.Extension)
		name = prefix + "_" + SanitizeFileName(title)
		if rec.Extension != "" {
			name += "." + strings.ToLower(rec.Extension)
		}
	}

	safe := capName(SanitizeFileName(name), MaxNameBytes)
	shard := strings.ToLower(safe[:min(2, len(safe))])
	return path.Join(rec.Kind.RootDir(), shard, safe)
}

// capName shortens name to at most limit bytes, cutting the stem on a
// rune boundary and keeping a short extension.
func capName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := path.Ext(name)
	if len(ext) > maxExtBytes || len(ext) == len(name) {
		ext = ""
	}
	stem := name[:len(name)-len(ext)]
	cut := limit - len(ext)
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	return strings.TrimRight(stem[:cut], "_.") + ext
}

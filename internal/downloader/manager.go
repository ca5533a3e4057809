// Package downloader saves episode files to disk. It plays the part of the
// browser's download manager: it takes a URL and a relative filename, applies
// a conflict policy and returns a handle for the started download.
package downloader

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ConflictPolicy decides what happens when the target file already exists.
type ConflictPolicy string

const (
	// ConflictUniquify saves as "name (1).ext", "name (2).ext", ...
	ConflictUniquify ConflictPolicy = "uniquify"
	// ConflictOverwrite replaces the existing file.
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// ParseConflictPolicy parses a -conflict flag value. Empty means uniquify.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ConflictUniquify:
		return ConflictUniquify, nil
	case ConflictOverwrite:
		return ConflictOverwrite, nil
	}
	return "", errors.Errorf("unknown conflict policy %q (want uniquify or overwrite)", s)
}

// SaveRequest is what the orchestrator hands to a Manager.
type SaveRequest struct {
	URL      string
	Filename string // relative, slash separated
	Conflict ConflictPolicy
	Referer  string
}

// Handle identifies a download the manager accepted.
type Handle struct {
	ID    string
	Path  string
	Bytes int64
}

// Manager accepts downloads.
type Manager interface {
	Save(ctx context.Context, req SaveRequest) (*Handle, error)
}

// ManagerError is returned when the manager refused or failed a save.
type ManagerError struct {
	URL      string
	Filename string
	Err      error
}

func (e *ManagerError) Error() string {
	return fmt.Sprintf("download of %s failed: %v", e.Filename, e.Err)
}

func (e *ManagerError) Unwrap() error { return e.Err }

var unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeName replaces every character outside [a-zA-Z0-9] with "_".
func SanitizeName(name string) string {
	return unsafeNameRe.ReplaceAllString(name, "_")
}

// BuildFilename returns "<sanitized anime>/<episode>_<quality lowercased>.<ext>".
func BuildFilename(animeName, episodeNumber, quality, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	return fmt.Sprintf("%s/%s_%s.%s", SanitizeName(animeName), episodeNumber, strings.ToLower(quality), ext)
}

// ExtensionFor guesses the file extension of a video URL. Streams that are
// remuxed by yt-dlp and URLs without a usable extension are saved as mp4.
func ExtensionFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "mp4"
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	switch ext {
	case "mp4", "mkv", "webm", "avi", "mov":
		return ext
	}
	return "mp4"
}

// Package bridge lets the browser extension drive the downloader through
// Chrome's native messaging: every message is a uint32 length in native byte
// order followed by that many bytes of JSON.
package bridge

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

const (
	// MaxOutgoingSize is the largest message Chrome accepts from a host.
	MaxOutgoingSize = 1 << 20
	// maxIncomingSize guards against garbage length prefixes.
	maxIncomingSize = 64 << 20
)

// ErrMessageTooLarge is returned when a message exceeds the size limits.
var ErrMessageTooLarge = errors.New("message too large")

// Action names understood by the dispatcher.
const (
	ActionFetchHTML       = "fetch-html-stealthily"
	ActionGetQualityLinks = "get-quality-links-for-url"
	ActionPerformDownload = "perform-download"
)

// legacyActions maps the extension's older action names.
var legacyActions = map[string]string{
	"stealth-fetch":     ActionFetchHTML,
	"get-quality-links": ActionGetQualityLinks,
	"download-episode":  ActionPerformDownload,
}

// Request is a message from the extension.
type Request struct {
	ID            string            `json:"id,omitempty"`
	Action        string            `json:"action"`
	URL           string            `json:"url,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	AnimeName     string            `json:"animeName,omitempty"`
	EpisodeNumber string            `json:"episodeNumber,omitempty"`
	Quality       string            `json:"quality,omitempty"`
}

// Response answers one Request. Exactly one of Result and Error is set.
type Response struct {
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Notification is pushed to the extension outside of any request.
type Notification struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// FetchResult is the result of ActionFetchHTML.
type FetchResult struct {
	HTML   string `json:"html"`
	Status int    `json:"status"`
}

// QualityLinksResult is the result of ActionGetQualityLinks.
type QualityLinksResult struct {
	Links map[string]string `json:"links"`
	Best  string            `json:"best,omitempty"`
}

// DownloadResult is the result of ActionPerformDownload.
type DownloadResult struct {
	DownloadID string `json:"downloadId"`
	Quality    string `json:"quality"`
	Path       string `json:"path,omitempty"`
}

// ReadMessage reads one framed message. It returns io.EOF when r ends cleanly
// between messages.
func ReadMessage(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to read message length")
	}

	size := binary.NativeEndian.Uint32(prefix[:])
	if size > maxIncomingSize {
		return nil, errors.Wrapf(ErrMessageTooLarge, "incoming message of %d bytes", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "failed to read message body")
	}
	return payload, nil
}

// WriteMessage encodes v as JSON and writes it as one frame.
func WriteMessage(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	if len(payload) > MaxOutgoingSize {
		return errors.Wrapf(ErrMessageTooLarge, "outgoing message of %d bytes", len(payload))
	}

	frame := make([]byte, 4+len(payload))
	binary.NativeEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

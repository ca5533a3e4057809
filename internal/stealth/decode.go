package stealth

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	"github.com/alvarorichard/firedl/internal/util"
)

// maxBodySize bounds how much of a page is read into memory.
const maxBodySize = 16 << 20

// readBody reads, decompresses and transcodes a response body to UTF-8.
// Requests advertise gzip, deflate and br themselves, so the transport does
// not decompress for us.
func readBody(body io.Reader, contentEncoding, contentType string) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	decoded, err := decompress(raw, contentEncoding)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %q body", contentEncoding)
	}

	return toUTF8(decoded, contentType), nil
}

func decompress(raw []byte, contentEncoding string) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	// Some servers gzip without saying so.
	if encoding == "" && len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		encoding = "gzip"
	}

	switch encoding {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer func() { _ = reader.Close() }()
		return readLimited(reader)
	case "br":
		return readLimited(brotli.NewReader(bytes.NewReader(raw)))
	case "deflate":
		// "deflate" is zlib-wrapped per RFC 9110, but raw deflate is common.
		if reader, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer func() { _ = reader.Close() }()
			return readLimited(reader)
		}
		reader := flate.NewReader(bytes.NewReader(raw))
		defer func() { _ = reader.Close() }()
		return readLimited(reader)
	default:
		util.Debug("unknown content encoding, keeping body as is", "encoding", contentEncoding)
		return raw, nil
	}
}

// readLimited caps the decompressed size as well as the compressed one.
func readLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBodySize))
}

func toUTF8(body []byte, contentType string) []byte {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		util.Debug("charset detection failed", "contentType", contentType, "error", err)
		return body
	}
	converted, err := io.ReadAll(reader)
	if err != nil {
		return body
	}
	return converted
}

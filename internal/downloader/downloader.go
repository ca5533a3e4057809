package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/alvarorichard/firedl/internal/stealth"
	"github.com/alvarorichard/firedl/internal/util"
)

// maxUniquifyAttempts bounds the "name (n).ext" search.
const maxUniquifyAttempts = 10000

// Options configures a FileManager.
type Options struct {
	OutputDir string
	Client    *http.Client
	UserAgent string // random browser identity when empty
	RateLimit int    // bytes per second, 0 = unlimited
	Progress  bool   // draw a progress bar on Output
	Output    io.Writer
}

// FileManager downloads files below an output directory.
type FileManager struct {
	outputDir string
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	progress  bool
	output    io.Writer
}

// NewFileManager creates a FileManager.
func NewFileManager(opts Options) *FileManager {
	m := &FileManager{
		outputDir: opts.OutputDir,
		client:    opts.Client,
		userAgent: opts.UserAgent,
		progress:  opts.Progress,
		output:    opts.Output,
	}
	if m.outputDir == "" {
		m.outputDir = util.DefaultOutputDir()
	}
	if m.client == nil {
		m.client = util.GetDownloadClient()
	}
	if m.output == nil {
		m.output = os.Stdout
	}
	if opts.RateLimit > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit)
	}
	return m
}

// OutputDir returns the directory downloads are saved below.
func (m *FileManager) OutputDir() string {
	return m.outputDir
}

// Save downloads req.URL to req.Filename below the output directory.
func (m *FileManager) Save(ctx context.Context, req SaveRequest) (*Handle, error) {
	fail := func(err error) (*Handle, error) {
		return nil, &ManagerError{URL: req.URL, Filename: req.Filename, Err: err}
	}

	if req.URL == "" {
		return fail(errors.New("empty video URL provided"))
	}
	if req.Filename == "" {
		return fail(errors.New("empty filename"))
	}

	dest, err := m.sanitizeDestPath(filepath.Join(m.outputDir, filepath.FromSlash(req.Filename)))
	if err != nil {
		return fail(errors.Wrap(err, "invalid destination path"))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fail(errors.Wrap(err, "failed to create directory"))
	}

	if req.Conflict != ConflictOverwrite {
		dest, err = uniquePath(dest)
		if err != nil {
			return fail(err)
		}
	}

	var written int64
	if needsYtDlp(req.URL) {
		written, err = m.downloadWithYtDlp(ctx, req, dest)
	} else {
		written, err = m.downloadHTTP(ctx, req, dest)
	}
	if err != nil {
		return fail(err)
	}

	handle := &Handle{ID: uuid.NewString(), Path: dest, Bytes: written}
	util.Debug("download saved", "id", handle.ID, "path", dest, "bytes", written)
	return handle, nil
}

// needsYtDlp reports whether the URL is a stream or player page instead of
// a plain file.
func needsYtDlp(videoURL string) bool {
	return strings.Contains(videoURL, ".m3u8") || strings.Contains(videoURL, "blogger.com")
}

// sanitizeDestPath ensures the destination path stays within the configured output directory
func (m *FileManager) sanitizeDestPath(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty destination path")
	}
	cleaned := filepath.Clean(p)
	absDir, err := filepath.Abs(filepath.Clean(m.outputDir))
	if err != nil {
		return "", err
	}
	absFile, err := filepath.Abs(cleaned)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absDir, absFile)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("destination escapes output directory: %s", cleaned)
	}
	return absFile, nil
}

// uniquePath returns p, or "name (n).ext" for the first n not taken.
func uniquePath(p string) (string, error) {
	if !fileExists(p) && !fileExists(p+partSuffix) {
		return p, nil
	}
	ext := filepath.Ext(p)
	base := strings.TrimSuffix(p, ext)
	for i := 1; i <= maxUniquifyAttempts; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if !fileExists(candidate) && !fileExists(candidate+partSuffix) {
			return candidate, nil
		}
	}
	return "", errors.Errorf("no free filename for %s", p)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

const partSuffix = ".part"

// downloadHTTP streams the file into dest+".part" and renames it when complete.
func (m *FileManager) downloadHTTP(ctx context.Context, req SaveRequest, dest string) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}
	userAgent := m.userAgent
	if userAgent == "" {
		userAgent = stealth.DefaultPool.Pick(nil).UserAgent
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if req.Referer != "" {
		httpReq.Header.Set("Referer", req.Referer)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return 0, errors.Wrap(err, "failed to start download")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			util.Warnf("Failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, errors.Errorf("bad status: %s", resp.Status)
	}

	part := dest + partSuffix
	// #nosec G304: dest validated by sanitizeDestPath to remain within the output directory
	out, err := os.Create(part)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create file")
	}

	var body io.Reader = resp.Body
	if m.limiter != nil {
		body = &rateLimitedReader{ctx: ctx, r: body, limiter: m.limiter}
	}

	written, copyErr := m.copyWithProgress(filepath.Base(dest), out, body, resp.ContentLength)
	if closeErr := out.Close(); copyErr == nil && closeErr != nil {
		copyErr = errors.Wrap(closeErr, "failed to close output file")
	}
	if copyErr != nil {
		_ = os.Remove(part)
		return written, copyErr
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return written, errors.Wrap(err, "failed to finalize file")
	}
	return written, nil
}

// copyWithProgress copies src to dst, drawing a progress bar when enabled.
func (m *FileManager) copyWithProgress(name string, dst io.Writer, src io.Reader, total int64) (int64, error) {
	if !m.progress {
		n, err := io.Copy(dst, src)
		if err != nil {
			return n, errors.Wrap(err, "failed to read from response")
		}
		return n, nil
	}

	var written int64
	err := runWithProgress(m.output, name, total, func(report func(received, total int64)) error {
		buffer := make([]byte, 32*1024)
		for {
			n, err := src.Read(buffer)
			if n > 0 {
				if _, writeErr := dst.Write(buffer[:n]); writeErr != nil {
					return errors.Wrap(writeErr, "failed to write to file")
				}
				written += int64(n)
				report(written, total)
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "failed to read from response")
			}
		}
	})
	return written, err
}

// downloadWithYtDlp hands HLS and player URLs to yt-dlp.
func (m *FileManager) downloadWithYtDlp(ctx context.Context, req SaveRequest, dest string) (int64, error) {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return 0, errors.Wrap(err, "failed to install yt-dlp")
	}

	run := func(report func(received, total int64)) error {
		dl := ytdlp.New().
			ForceOverwrites().
			Output(dest)
		dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			report(int64(update.DownloadedBytes), int64(update.TotalBytes))
		})
		if _, err := dl.Run(ctx, req.URL); err != nil {
			return errors.Wrap(err, "go-ytdlp download failed")
		}
		return nil
	}

	var err error
	if m.progress {
		err = runWithProgress(m.output, filepath.Base(dest), 0, run)
	} else {
		err = run(func(int64, int64) {})
	}
	if err != nil {
		return 0, err
	}

	stat, err := os.Stat(dest)
	if err != nil {
		return 0, errors.Errorf("download failed: file was not created at %s", dest)
	}
	return stat.Size(), nil
}

// rateLimitedReader caps throughput with a token bucket.
type rateLimitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if waitErr := r.limiter.WaitN(r.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

package bridge

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/firedl/internal/download"
	"github.com/alvarorichard/firedl/internal/downloader"
	"github.com/alvarorichard/firedl/internal/models"
	"github.com/alvarorichard/firedl/internal/stealth"
)

type fakeFetcher struct {
	mu      sync.Mutex
	headers []http.Header
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, overrides http.Header) (*stealth.Page, error) {
	f.mu.Lock()
	f.headers = append(f.headers, overrides)
	f.mu.Unlock()
	if strings.Contains(url, "down") {
		return nil, &stealth.NetworkError{URL: url, Err: stealth.ErrAllMethodsFailed}
	}
	return &stealth.Page{URL: url, StatusCode: http.StatusOK, Body: "<html>" + url + "</html>"}, nil
}

type fakeLinks struct{}

func (fakeLinks) DownloadPageURL(ep models.EpisodeIdentity) string {
	return "https://animefire.plus/download/" + ep.AnimeName + "/" + ep.EpisodeNumber
}

func (fakeLinks) GetQualityLinks(_ context.Context, pageURL string) (models.QualityLinkMap, error) {
	switch {
	case strings.HasSuffix(pageURL, "/empty/1"):
		return models.QualityLinkMap{}, nil
	case strings.HasSuffix(pageURL, "/blocked/1"):
		return nil, errors.New("site returned a challenge page")
	}
	return models.QualityLinkMap{"SD": "/v/sd.mp4", "HD": "/v/hd.mp4"}, nil
}

type fakeManager struct {
	mu       sync.Mutex
	requests []downloader.SaveRequest
}

func (m *fakeManager) Save(_ context.Context, req downloader.SaveRequest) (*downloader.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return &downloader.Handle{ID: "id-1", Path: "/out/" + req.Filename}, nil
}

func newTestDispatcher() (*Dispatcher, *fakeFetcher, *fakeManager) {
	fetcher := &fakeFetcher{}
	manager := &fakeManager{}
	orch := download.New(download.Options{
		Links:   fakeLinks{},
		Manager: manager,
		Sleep:   func(context.Context, time.Duration) error { return nil },
	})
	d := NewDispatcher(Options{
		Fetcher:      fetcher,
		Links:        fakeLinks{},
		Manager:      manager,
		Orchestrator: orch,
	})
	return d, fetcher, manager
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, &Request{ID: "1", Action: ActionFetchHTML, URL: "https://a"}))
	require.NoError(t, WriteMessage(&buf, &Response{ID: "1", Success: true}))

	reqJSON, err := json.Marshal(&Request{ID: "1", Action: ActionFetchHTML, URL: "https://a"})
	require.NoError(t, err)
	assert.Equal(t, uint32(len(reqJSON)), binary.NativeEndian.Uint32(buf.Bytes()[:4]))

	first, err := ReadMessage(&buf)
	require.NoError(t, err)
	var req Request
	require.NoError(t, json.Unmarshal(first, &req))
	assert.Equal(t, Request{ID: "1", Action: ActionFetchHTML, URL: "https://a"}, req)

	second, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","success":true}`, string(second))

	_, err = ReadMessage(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestReadMessageTruncated(t *testing.T) {
	t.Parallel()

	var frame [4]byte
	binary.NativeEndian.PutUint32(frame[:], 10)
	_, err := ReadMessage(bytes.NewReader(append(frame[:], "abc"...)))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	binary.NativeEndian.PutUint32(frame[:], maxIncomingSize+1)
	_, err = ReadMessage(bytes.NewReader(frame[:]))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestWriteMessageTooLarge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteMessage(&buf, &FetchResult{HTML: strings.Repeat("x", MaxOutgoingSize)})
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	assert.Zero(t, buf.Len())
}

func TestDispatchFetchHTML(t *testing.T) {
	t.Parallel()

	d, fetcher, _ := newTestDispatcher()
	resp := d.Handle(context.Background(), &Request{
		ID:      "7",
		Action:  ActionFetchHTML,
		URL:     "https://animefire.plus/x",
		Headers: map[string]string{"accept-language": "en"},
	})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "7", resp.ID)
	assert.Equal(t, &FetchResult{HTML: "<html>https://animefire.plus/x</html>", Status: 200}, resp.Result)
	assert.Equal(t, "en", fetcher.headers[0].Get("Accept-Language"))

	resp = d.Handle(context.Background(), &Request{Action: "stealth-fetch", URL: "https://down.example"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "all request methods failed")
}

func TestDispatchQualityLinks(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher()
	resp := d.Handle(context.Background(), &Request{Action: ActionGetQualityLinks, URL: "https://animefire.plus/download/naruto/1"})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, &QualityLinksResult{
		Links: map[string]string{"SD": "/v/sd.mp4", "HD": "/v/hd.mp4"},
		Best:  "HD",
	}, resp.Result)

	resp = d.Handle(context.Background(), &Request{Action: "get-quality-links", AnimeName: "empty", EpisodeNumber: "1"})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, &QualityLinksResult{Links: map[string]string{}}, resp.Result)

	resp = d.Handle(context.Background(), &Request{Action: ActionGetQualityLinks, AnimeName: "blocked", EpisodeNumber: "1"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "challenge")
}

func TestDispatchPerformDownloadDirect(t *testing.T) {
	t.Parallel()

	d, _, manager := newTestDispatcher()
	resp := d.Handle(context.Background(), &Request{
		Action:        "download-episode",
		URL:           "https://cdn.example/ep.mp4",
		AnimeName:     "One Piece!",
		EpisodeNumber: "12",
		Quality:       "FullHD",
	})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, &DownloadResult{DownloadID: "id-1", Quality: "FullHD", Path: "/out/One_Piece_/12_fullhd.mp4"}, resp.Result)
	require.Len(t, manager.requests, 1)
	assert.Equal(t, downloader.ConflictUniquify, manager.requests[0].Conflict)

	resp = d.Handle(context.Background(), &Request{Action: ActionPerformDownload, URL: "https://cdn.example/ep.mp4", AnimeName: "x", EpisodeNumber: "1"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "missing quality")
}

func TestDispatchPerformDownloadOrchestrated(t *testing.T) {
	t.Parallel()

	d, _, manager := newTestDispatcher()
	resp := d.Handle(context.Background(), &Request{Action: ActionPerformDownload, AnimeName: "naruto", EpisodeNumber: "3"})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, &DownloadResult{DownloadID: "id-1", Quality: "HD", Path: "/out/naruto/3_hd.mp4"}, resp.Result)
	require.Len(t, manager.requests, 1)
	assert.Equal(t, "https://animefire.plus/v/hd.mp4", manager.requests[0].URL)

	resp = d.Handle(context.Background(), &Request{Action: ActionPerformDownload})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "animeName and episodeNumber are required")
}

func TestDispatchUnknownAction(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher()
	resp := d.Handle(context.Background(), &Request{ID: "x", Action: "play"})
	assert.False(t, resp.Success)
	assert.Equal(t, "x", resp.ID)
	assert.Contains(t, resp.Error, "unknown action")
}

// notifyingHandler sends a notification through the host before answering.
type notifyingHandler struct {
	host *Host
}

func (n *notifyingHandler) Handle(_ context.Context, req *Request) *Response {
	n.host.Notify("AnimeFire Downloader", "working on "+req.ID)
	return &Response{ID: req.ID, Success: true, Result: req.Action}
}

func TestHostServe(t *testing.T) {
	t.Parallel()

	handler := &notifyingHandler{}
	host := NewHost(handler)
	handler.host = host

	var in bytes.Buffer
	require.NoError(t, WriteMessage(&in, &Request{ID: "a", Action: "one"}))
	require.NoError(t, WriteMessage(&in, &Request{ID: "b", Action: "two"}))
	var prefix [4]byte
	binary.NativeEndian.PutUint32(prefix[:], 2)
	in.Write(prefix[:])
	in.WriteString("{x")

	var out bytes.Buffer
	require.NoError(t, host.Serve(context.Background(), &in, &out))

	responses := map[string]Response{}
	var notifications []Notification
	var invalid int
	for {
		payload, err := ReadMessage(&out)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		var envelope map[string]any
		require.NoError(t, json.Unmarshal(payload, &envelope))
		if envelope["type"] == "notification" {
			var n Notification
			require.NoError(t, json.Unmarshal(payload, &n))
			notifications = append(notifications, n)
			continue
		}
		var resp Response
		require.NoError(t, json.Unmarshal(payload, &resp))
		if resp.ID == "" {
			invalid++
			assert.Contains(t, resp.Error, "invalid request")
			continue
		}
		responses[resp.ID] = resp
	}

	require.Len(t, responses, 2)
	assert.Equal(t, "one", responses["a"].Result)
	assert.Equal(t, "two", responses["b"].Result)
	assert.Len(t, notifications, 2)
	assert.Equal(t, 1, invalid)

	// Not serving anymore: notifications are dropped.
	host.Notify("t", "m")
	assert.Zero(t, out.Len())
}

func TestHostServeCancelled(t *testing.T) {
	t.Parallel()

	host := NewHost(&notifyingHandler{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := host.Serve(ctx, strings.NewReader(""), io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostServeCancelWhileReading(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	handler := &notifyingHandler{}
	host := NewHost(handler)
	handler.host = host
	ctx, cancel := context.WithCancel(context.Background())

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- host.Serve(ctx, pr, &out) }()

	// Half a frame: the host stays blocked inside the read.
	var prefix [4]byte
	binary.NativeEndian.PutUint32(prefix[:], 64)
	_, err := pw.Write(prefix[:])
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

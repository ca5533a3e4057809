// Package stealth fetches site pages while looking like ordinary browser
// traffic: paced requests, rotating browser identities and a fallback ladder
// for rate-limited or blocked responses.
package stealth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/firedl/internal/scheduler"
	"github.com/alvarorichard/firedl/internal/util"
)

const (
	// DefaultSiteRoot is sent as Referer on stealth requests.
	DefaultSiteRoot = "https://animefire.plus"

	// DefaultMaxRateLimitRetries bounds the 429 retry loop.
	DefaultMaxRateLimitRetries = 5

	// DefaultLastResortDelay is the pause before the minimal-identity request.
	DefaultLastResortDelay = 5 * time.Second
)

var (
	// ErrAllMethodsFailed is returned when the crawler identity was refused too.
	ErrAllMethodsFailed = errors.New("all request methods failed")
	// ErrRateLimited is returned when the site kept answering 429.
	ErrRateLimited = errors.New("rate limited: retry budget exhausted")
)

// NetworkError is a transport or HTTP failure that the fallback ladder could
// not recover from.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request to %s failed (HTTP %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Attempt names the rung of the fallback ladder that produced a page.
type Attempt string

const (
	AttemptDirect  Attempt = "direct"
	AttemptCrawler Attempt = "crawler"
	AttemptMinimal Attempt = "minimal"
)

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       string
	Attempt    Attempt
}

// OK reports a 2xx status.
func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

var challengeMarkers = []string{
	"cf-browser-verification",
	"challenge-form",
	"/cdn-cgi/challenge-platform/",
	"cf-chl-",
	`id="cf-wrapper"`,
	"<title>just a moment...</title>",
}

// Challenge reports whether the page is a Cloudflare interstitial rather than
// site content.
func (p *Page) Challenge() bool {
	body := strings.ToLower(p.Body)
	for _, marker := range challengeMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// Options configures a Fetcher. Zero values get defaults.
type Options struct {
	Client              *http.Client
	Scheduler           *scheduler.Scheduler
	State               *scheduler.State
	Pool                Pool
	Rand                Rand
	SiteRoot            string
	MaxRateLimitRetries int
	LastResortDelay     time.Duration
	Sleep               scheduler.SleepFunc
	Now                 func() time.Time
}

// Fetcher performs stealth GET requests.
type Fetcher struct {
	client          *http.Client
	sched           *scheduler.Scheduler
	state           *scheduler.State
	pool            Pool
	rng             Rand
	siteRoot        string
	maxRetries      int
	lastResortDelay time.Duration
	sleep           scheduler.SleepFunc
	now             func() time.Time
}

// NewFetcher creates a fetcher from opts.
func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		client:          opts.Client,
		sched:           opts.Scheduler,
		state:           opts.State,
		pool:            opts.Pool,
		rng:             opts.Rand,
		siteRoot:        opts.SiteRoot,
		maxRetries:      opts.MaxRateLimitRetries,
		lastResortDelay: opts.LastResortDelay,
		sleep:           opts.Sleep,
		now:             opts.Now,
	}
	if f.client == nil {
		f.client = util.GetSharedClient()
	}
	if f.sched == nil {
		f.sched = scheduler.New(scheduler.StealthPacing, nil)
	}
	if f.state == nil {
		f.state = &scheduler.State{}
	}
	if len(f.pool) == 0 {
		f.pool = DefaultPool
	}
	if f.rng == nil {
		f.rng = globalRand{}
	}
	if f.siteRoot == "" {
		f.siteRoot = DefaultSiteRoot
	}
	if f.maxRetries <= 0 {
		f.maxRetries = DefaultMaxRateLimitRetries
	}
	if f.lastResortDelay <= 0 {
		f.lastResortDelay = DefaultLastResortDelay
	}
	if f.sleep == nil {
		f.sleep = scheduler.Sleep
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// State returns the pacing state the fetcher records into.
func (f *Fetcher) State() *scheduler.State {
	return f.state
}

// FetchHTML fetches url and returns its body.
func (f *Fetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	page, err := f.Fetch(ctx, url, nil)
	if err != nil {
		return "", err
	}
	return page.Body, nil
}

// Fetch GETs url with a random browser identity. Header overrides win over
// the generated headers. On 429 it backs off and retries, on 403/406 it
// retries once as a crawler, and on any other failure it makes a final
// minimal request whose response is returned whatever its status.
func (f *Fetcher) Fetch(ctx context.Context, url string, overrides http.Header) (*Page, error) {
	for retries := 0; ; retries++ {
		if err := f.pace(ctx); err != nil {
			return nil, &NetworkError{URL: url, Err: err}
		}

		profile := f.pool.Pick(f.rng)
		header := merge(merge(browserHeaders(f.siteRoot), profile.Header()), overrides)

		page, err := f.do(ctx, url, header, AttemptDirect)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &NetworkError{URL: url, Err: ctx.Err()}
			}
			util.Warn("stealth request failed, trying alternative request", "url", url, "error", err)
			return f.lastResort(ctx, url, err)
		}

		switch {
		case page.OK():
			util.Debug("stealth request succeeded", "url", url, "status", page.StatusCode, "profile", profile.Name)
			return page, nil

		case page.StatusCode == http.StatusTooManyRequests:
			if retries >= f.maxRetries {
				return nil, &NetworkError{URL: url, StatusCode: page.StatusCode, Err: ErrRateLimited}
			}
			backoff := f.sched.BackoffDelay(f.state)
			util.Warn("rate limited, backing off", "url", url, "wait", backoff, "retry", retries+1)
			if err := f.sleep(ctx, backoff); err != nil {
				return nil, &NetworkError{URL: url, StatusCode: page.StatusCode, Err: err}
			}

		case page.StatusCode == http.StatusForbidden || page.StatusCode == http.StatusNotAcceptable:
			util.Warn("request blocked, retrying with crawler identity", "url", url, "status", page.StatusCode)
			return f.crawler(ctx, url, overrides)

		default:
			cause := errors.Errorf("HTTP %d: %s", page.StatusCode, http.StatusText(page.StatusCode))
			util.Warn("stealth request failed, trying alternative request", "url", url, "error", cause)
			return f.lastResort(ctx, url, cause)
		}
	}
}

// pace waits until the scheduler allows the next request.
func (f *Fetcher) pace(ctx context.Context) error {
	wait := f.sched.Remaining(f.state, f.now())
	if wait <= 0 {
		return nil
	}
	util.Debug("pacing request", "wait", wait)
	return f.sleep(ctx, wait)
}

func (f *Fetcher) crawler(ctx context.Context, url string, overrides http.Header) (*Page, error) {
	page, err := f.do(ctx, url, merge(crawlerHeaders(), overrides), AttemptCrawler)
	if err != nil {
		util.Debug("crawler request failed", "url", url, "error", err)
		return nil, &NetworkError{URL: url, Err: ErrAllMethodsFailed}
	}
	if !page.OK() {
		return nil, &NetworkError{URL: url, StatusCode: page.StatusCode, Err: ErrAllMethodsFailed}
	}
	return page, nil
}

func (f *Fetcher) lastResort(ctx context.Context, url string, cause error) (*Page, error) {
	if err := f.sleep(ctx, f.lastResortDelay); err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	header := make(http.Header)
	header.Set("User-Agent", f.pool.Pick(f.rng).UserAgent)

	page, err := f.do(ctx, url, header, AttemptMinimal)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: errors.Wrapf(err, "alternative request failed (after %v)", cause)}
	}
	return page, nil
}

// do issues one request and records it in the pacing state.
func (f *Fetcher) do(ctx context.Context, url string, header http.Header, attempt Attempt) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header = header
	if strings.EqualFold(header.Get("Connection"), "close") {
		req.Close = true
	}

	f.state.Record(f.now())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	return &Page{
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
		Attempt:    attempt,
	}, nil
}

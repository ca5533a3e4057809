package stealth

import (
	"math/rand/v2"
	"net/http"
	"strings"
)

// Profile is one browser fingerprint: a user agent plus the client hints a
// real browser of that family would send. Profiles are values and never
// mutated; Header returns a fresh copy.
type Profile struct {
	Name      string
	UserAgent string
	Platform  string
}

// Header returns the identity headers of the profile.
func (p Profile) Header() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", p.UserAgent)
	if strings.Contains(p.UserAgent, "Chrome/") {
		h.Set("sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="`+chromeMajor(p.UserAgent)+`", "Google Chrome";v="`+chromeMajor(p.UserAgent)+`"`)
		h.Set("sec-ch-ua-mobile", "?0")
		h.Set("sec-ch-ua-platform", `"`+p.Platform+`"`)
	}
	return h
}

func chromeMajor(ua string) string {
	_, rest, ok := strings.Cut(ua, "Chrome/")
	if !ok {
		return ""
	}
	major, _, _ := strings.Cut(rest, ".")
	return major
}

// Pool is an ordered, compiled-in list of profiles.
type Pool []Profile

// DefaultPool mirrors the desktop browsers most of the site's audience uses.
var DefaultPool = Pool{
	{Name: "chrome-120-windows", Platform: "Windows", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	{Name: "chrome-119-windows", Platform: "Windows", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"},
	{Name: "chrome-120-macos", Platform: "macOS", UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	{Name: "chrome-120-linux", Platform: "Linux", UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	{Name: "firefox-121-windows", Platform: "Windows", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"},
	{Name: "firefox-121-macos", Platform: "macOS", UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0"},
}

// CrawlerProfile is the search-engine identity used once a browser identity
// has been refused.
var CrawlerProfile = Profile{
	Name:      "googlebot",
	UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
}

// Rand picks profile indexes.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Pick returns a uniformly chosen profile. An empty pool yields DefaultPool's first entry.
func (p Pool) Pick(rng Rand) Profile {
	if len(p) == 0 {
		return DefaultPool[0]
	}
	if rng == nil {
		rng = globalRand{}
	}
	return p[rng.IntN(len(p))]
}

// browserHeaders is the baseline sent with every stealth request.
func browserHeaders(siteRoot string) http.Header {
	h := make(http.Header)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("DNT", "1")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "cross-site")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Referer", strings.TrimRight(siteRoot, "/")+"/")
	return h
}

// crawlerHeaders is the minimal header set of the crawler identity.
func crawlerHeaders() http.Header {
	h := CrawlerProfile.Header()
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Accept-Encoding", "identity")
	h.Set("Connection", "close")
	h.Set("Cache-Control", "no-cache")
	return h
}

// merge copies src over dst; keys in src win.
func merge(dst, src http.Header) http.Header {
	for key, values := range src {
		dst[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	return dst
}

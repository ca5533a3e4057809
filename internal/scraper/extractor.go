package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/alvarorichard/firedl/internal/models"
	"github.com/alvarorichard/firedl/internal/util"
)

// Document is a download page parsed once and shared by every strategy.
// DOM is nil when the page could not be parsed at all.
type Document struct {
	Raw string
	DOM *goquery.Document
}

// Strategy turns a document into a quality map. A strategy that finds
// nothing returns an empty or nil map.
type Strategy struct {
	Name string
	Run  func(doc *Document) models.QualityLinkMap
}

// Extractor applies strategies in order and keeps the first non-empty result.
type Extractor struct {
	strategies []Strategy
}

// NewExtractor creates an extractor. Without strategies it uses DefaultStrategies.
func NewExtractor(strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{strategies: strategies}
}

// DefaultStrategies returns the labeled-anchor, generic-video-anchor and
// inline-script strategies, in that order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "labeled-anchor", Run: labeledAnchors},
		{Name: "generic-video-anchor", Run: genericVideoAnchors},
		{Name: "inline-script", Run: inlineScripts},
	}
}

// Extract never fails: when nothing matches it returns an empty map.
func (e *Extractor) Extract(html string) models.QualityLinkMap {
	doc := &Document{Raw: html}
	if dom, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.DOM = dom
	} else {
		util.Debug("failed to parse download page", "error", err)
	}

	for _, strategy := range e.strategies {
		links := runStrategy(strategy, doc)
		if len(links) > 0 {
			util.Debug("quality links found", "strategy", strategy.Name, "labels", links.Labels())
			return links
		}
	}
	return models.QualityLinkMap{}
}

// runStrategy contains a panicking strategy so the next one still runs.
func runStrategy(strategy Strategy, doc *Document) (links models.QualityLinkMap) {
	defer func() {
		if r := recover(); r != nil {
			util.Debug("extraction strategy panicked", "strategy", strategy.Name, "panic", r)
			links = nil
		}
	}()
	return strategy.Run(doc)
}

var labeledAnchorSelectors = []string{
	`a[href*=".mp4"]`,
	`a[href*="download"]`,
	`a[href*="stream"]`,
	`.quality-link`,
	`.download-link`,
}

// labeledAnchors records anchors whose text is exactly a quality label. The
// first selector that yields any label wins.
func labeledAnchors(doc *Document) models.QualityLinkMap {
	if doc.DOM == nil {
		return nil
	}
	for _, selector := range labeledAnchorSelectors {
		links := models.QualityLinkMap{}
		doc.DOM.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			href, ok := s.Attr("href")
			if ok && href != "" && models.IsCanonical(text) {
				links[text] = href
			}
		})
		if len(links) > 0 {
			return links
		}
	}
	return nil
}

func isVideoHref(href string) bool {
	return strings.Contains(href, ".mp4") || strings.Contains(href, "download") || strings.Contains(href, "stream")
}

// genericVideoAnchors labels every video-looking anchor, synthesizing
// Quality<n> from the anchor's position when its text is not a label.
func genericVideoAnchors(doc *Document) models.QualityLinkMap {
	if doc.DOM == nil {
		return nil
	}
	links := models.QualityLinkMap{}
	index := 0
	doc.DOM.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !isVideoHref(href) {
			return
		}
		label := strings.TrimSpace(s.Text())
		if !models.IsCanonical(label) {
			label = models.SyntheticLabel(index)
		}
		links[label] = href
		index++
	})
	return links
}

var (
	scriptURLRe   = regexp.MustCompile(`(?i)(?:src|url|link)["']\s*:\s*["']([^"']*\.mp4[^"']*)["']`)
	labeledHrefRe = regexp.MustCompile(`(?i)(SD|HD|F-HD|FullHD).*?href\s*=\s*["']([^"']+)["']`)
	exactLabelRe  = regexp.MustCompile(`(SD|HD|F-HD|FullHD)`)
	hrefValueRe   = regexp.MustCompile(`href\s*=\s*["']([^"']+)["']`)
)

// inlineScripts looks for mp4 URLs in script bodies, then pairs quality
// labels with the next href in the raw markup.
func inlineScripts(doc *Document) models.QualityLinkMap {
	links := models.QualityLinkMap{}

	index := 0
	for _, script := range scriptBodies(doc) {
		for _, match := range scriptURLRe.FindAllStringSubmatch(script, -1) {
			label := string(models.QualityHD)
			if index > 0 {
				label = models.SyntheticLabel(index)
			}
			links[label] = match[1]
			index++
		}
	}

	for _, match := range labeledHrefRe.FindAllString(doc.Raw, -1) {
		label := exactLabelRe.FindString(match)
		href := hrefValueRe.FindStringSubmatch(match)
		if label != "" && href != nil {
			links[label] = href[1]
		}
	}

	return links
}

func scriptBodies(doc *Document) []string {
	if doc.DOM == nil {
		return []string{doc.Raw}
	}
	var bodies []string
	doc.DOM.Find("script").Each(func(_ int, s *goquery.Selection) {
		bodies = append(bodies, s.Text())
	})
	return bodies
}

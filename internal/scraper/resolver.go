package scraper

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/firedl/internal/models"
)

// QualityPriority orders the site's labels from best to worst.
var QualityPriority = []models.QualityLabel{
	models.QualityFullHD,
	models.QualityFHD,
	models.QualityHD,
	models.QualitySD,
}

var (
	// ErrNoQuality means extraction produced no link at all.
	ErrNoQuality = errors.New("no quality available")
	// ErrQualityUnavailable means the requested label is not on the page.
	ErrQualityUnavailable = errors.New("quality unavailable")
)

// PickBest returns the highest-priority label present. When the map holds
// only synthetic labels the lexicographically first one is returned. ok is
// false for an empty map.
func PickBest(links models.QualityLinkMap) (label string, ok bool) {
	if len(links) == 0 {
		return "", false
	}
	for _, q := range QualityPriority {
		if _, present := links[string(q)]; present {
			return string(q), true
		}
	}
	keys := make([]string, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], true
}

// Resolve picks the label and link to download. requested is "auto" (or
// empty) for the best available, otherwise a label that must be present.
func Resolve(links models.QualityLinkMap, requested string) (label, link string, err error) {
	if len(links) == 0 {
		return "", "", ErrNoQuality
	}

	if requested == "" || strings.EqualFold(requested, models.QualityAuto) {
		label, _ = PickBest(links)
		return label, links[label], nil
	}

	if link, ok := links[requested]; ok {
		return requested, link, nil
	}
	// Accept "hd" for "HD" and the like.
	if normalized, nerr := models.NormalizeQuality(requested); nerr == nil {
		if link, ok := links[normalized]; ok {
			return normalized, link, nil
		}
	}

	return "", "", errors.Wrapf(ErrQualityUnavailable, "quality %s not available (found %s)",
		requested, strings.Join(links.Labels(), ", "))
}

package models

import (
	"fmt"
	"sort"
	"strings"
)

// QualityLabel names one video resolution tier offered by the site.
type QualityLabel string

const (
	QualitySD     QualityLabel = "SD"
	QualityHD     QualityLabel = "HD"
	QualityFHD    QualityLabel = "F-HD"
	QualityFullHD QualityLabel = "FullHD"

	// QualityAuto asks the resolver for the best label present.
	QualityAuto = "auto"
	// QualityAsk asks the user to pick among the labels present.
	QualityAsk = "ask"
)

// CanonicalQualities is the closed set of labels the site uses, lowest first.
var CanonicalQualities = []QualityLabel{QualitySD, QualityHD, QualityFHD, QualityFullHD}

// IsCanonical reports whether label is exactly one of the site's labels.
func IsCanonical(label string) bool {
	for _, q := range CanonicalQualities {
		if string(q) == label {
			return true
		}
	}
	return false
}

// SyntheticLabel builds the placeholder label used when a link has no
// recognizable quality name.
func SyntheticLabel(index int) string {
	return fmt.Sprintf("Quality%d", index)
}

// NormalizeQuality maps user input (any case) to a canonical label, "auto" or "ask".
func NormalizeQuality(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	switch strings.ToLower(trimmed) {
	case "", QualityAuto, "best":
		return QualityAuto, nil
	case QualityAsk:
		return QualityAsk, nil
	case "fhd":
		return string(QualityFHD), nil
	case "fullhd", "full-hd", "1080p":
		return string(QualityFullHD), nil
	}
	for _, q := range CanonicalQualities {
		if strings.EqualFold(string(q), trimmed) {
			return string(q), nil
		}
	}
	return "", fmt.Errorf("unknown quality %q (expected auto, ask, SD, HD, F-HD or FullHD)", input)
}

// QualityLinkMap maps a quality label to the link serving it. A map is
// always produced by a single extraction strategy.
type QualityLinkMap map[string]string

// Labels returns the labels present in the map, sorted.
func (m QualityLinkMap) Labels() []string {
	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

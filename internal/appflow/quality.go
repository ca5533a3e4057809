package appflow

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"

	"github.com/alvarorichard/firedl/internal/models"
	"github.com/alvarorichard/firedl/internal/scraper"
)

// AskQuality lets the user pick one of the qualities found for an episode.
// The best quality is preselected.
func AskQuality(ctx context.Context, ep models.EpisodeIdentity, links models.QualityLinkMap) (string, error) {
	choice, _ := scraper.PickBest(links)

	menu := huh.NewSelect[string]().
		Title("Quality").
		Description(fmt.Sprintf("Choose the quality for %s:", ep)).
		Options(qualityOptions(links)...).
		Value(&choice)

	if err := huh.NewForm(huh.NewGroup(menu)).RunWithContext(ctx); err != nil {
		return "", errors.Wrap(err, "error showing quality menu")
	}
	return choice, nil
}

// qualityOptions lists the labels present, best first.
func qualityOptions(links models.QualityLinkMap) []huh.Option[string] {
	seen := make(map[string]bool, len(links))
	var options []huh.Option[string]
	for _, q := range scraper.QualityPriority {
		label := string(q)
		if _, ok := links[label]; ok {
			options = append(options, huh.NewOption(label, label))
			seen[label] = true
		}
	}
	for _, label := range links.Labels() {
		if !seen[label] {
			options = append(options, huh.NewOption(label, label))
		}
	}
	return options
}

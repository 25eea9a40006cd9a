package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"meetbot/internal/domain"
	"meetbot/internal/phrases"
	"meetbot/internal/ports"
)

var inCallIndicators = []ports.Selector{
	ports.CSS(`button[aria-label*="Leave call"]`),
	ports.CSS(`div[data-meeting-title]`),
	ports.CSS(`button[aria-label*="microphone"]`),
	ports.CSS(`button[aria-label*="camera"]`),
}

// StatusClassifier derives a session phase from what the page shows.
// Structural in-call indicators outrank any phrase match.
type StatusClassifier struct {
	surface ports.ControlSurface
	catalog *phrases.Catalog
	logger  *slog.Logger
}

func NewStatusClassifier(surface ports.ControlSurface, catalog *phrases.Catalog, logger *slog.Logger) *StatusClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusClassifier{
		surface: surface,
		catalog: catalog,
		logger:  logger.With("component", "classifier"),
	}
}

// Classify returns Joined, Waiting, Ended or Unknown. A surface failure
// yields PhaseError along with the cause.
func (c *StatusClassifier) Classify(ctx context.Context) (domain.Phase, error) {
	for _, sel := range inCallIndicators {
		elems, err := c.surface.FindElements(ctx, sel)
		if err != nil {
			continue
		}
		for _, elem := range elems {
			if elem.IsVisible(ctx) {
				c.logger.Debug("in-call indicator visible", "selector", sel.String())
				return domain.PhaseJoined, nil
			}
		}
	}

	content, err := c.surface.PageContent(ctx)
	if err != nil {
		return domain.PhaseError, fmt.Errorf("read page content: %w", err)
	}
	if phrase, ok := c.catalog.Match(phrases.Waiting, content); ok {
		c.logger.Info("waiting for approval", "phrase", phrase)
		return domain.PhaseWaiting, nil
	}
	if phrase, ok := c.catalog.Match(phrases.Ended, content); ok {
		c.logger.Info("meeting ended detected", "phrase", phrase)
		return domain.PhaseEnded, nil
	}
	return domain.PhaseUnknown, nil
}

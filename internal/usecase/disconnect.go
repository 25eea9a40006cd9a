package usecase

import (
	"context"
	"log/slog"
	"strings"

	"meetbot/internal/phrases"
	"meetbot/internal/ports"
)

// DisconnectDetector checks termination signals independently of the
// status classifier. It keeps no state between calls.
type DisconnectDetector struct {
	surface        ports.ControlSurface
	catalog        *phrases.Catalog
	expectedDomain string
	logger         *slog.Logger
}

func NewDisconnectDetector(surface ports.ControlSurface, catalog *phrases.Catalog, expectedDomain string, logger *slog.Logger) *DisconnectDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisconnectDetector{
		surface:        surface,
		catalog:        catalog,
		expectedDomain: expectedDomain,
		logger:         logger.With("component", "disconnect"),
	}
}

// IsDisconnected reports true when the page left the conference domain,
// shows a disconnect phrase, or cannot be read.
func (d *DisconnectDetector) IsDisconnected(ctx context.Context) bool {
	url, err := d.surface.CurrentURL(ctx)
	if err != nil {
		d.logger.Error("error reading current url", "error", err)
		return true
	}
	if d.expectedDomain != "" && !strings.Contains(url, d.expectedDomain) {
		d.logger.Warn("no longer on conference url", "url", url)
		return true
	}

	content, err := d.surface.PageContent(ctx)
	if err != nil {
		d.logger.Error("error reading page content", "error", err)
		return true
	}
	if phrase, ok := d.catalog.Match(phrases.Disconnect, content); ok {
		d.logger.Warn("disconnection detected", "phrase", phrase)
		return true
	}
	return false
}

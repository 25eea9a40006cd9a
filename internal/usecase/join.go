package usecase

import (
	"context"
	"fmt"
	"strings"

	"meetbot/internal/domain"
	"meetbot/internal/phrases"
	"meetbot/internal/ports"
)

var nameSelectors = []ports.Selector{
	ports.CSS(`input[placeholder="Your name"]`),
	ports.CSS(`input[placeholder*="name"]`),
	ports.CSS(`input[aria-label*="name"]`),
	ports.CSS(`input[type="text"][placeholder]`),
}

var joinSelectors = []ports.Selector{
	ports.XPath(`//span[contains(text(), 'Ask to join')]/parent::button`),
	ports.XPath(`//span[contains(text(), 'Join now')]/parent::button`),
	ports.XPath(`//span[contains(text(), 'Join')]/parent::button`),
	ports.CSS(`button[jsname='Qx7uuf']`),
	ports.CSS(`button[aria-label*='Join']`),
	ports.CSS(`button[aria-label*='Ask to join']`),
}

var variantQueries = []string{
	"pli=1",
	"hl=en",
	"authuser=0",
	"usp=meet_web",
	"continue=https://meet.google.com",
}

// meetingURLVariants returns the link followed by canonical forms of the
// same meeting, without duplicates.
func meetingURLVariants(link, host string) []string {
	id := link
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.Index(id, "?"); i >= 0 {
		id = id[:i]
	}

	canonical := fmt.Sprintf("https://%s/%s", host, id)
	candidates := []string{link, canonical}
	for _, q := range variantQueries {
		candidates = append(candidates, canonical+"?"+q)
	}

	seen := make(map[string]struct{}, len(candidates))
	variants := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		variants = append(variants, candidate)
	}
	return variants
}

// RequestJoin navigates to the meeting, enforces muted media, enters the
// display name and clicks the join button. Restriction pages and a missing
// name field are tolerated; a missing or unclickable join button is not.
func (c *SessionController) RequestJoin(ctx context.Context) error {
	surface := c.getSurface()
	if surface == nil {
		return ErrSurfaceNotOpen
	}
	c.mu.Lock()
	media := c.media
	c.mu.Unlock()

	c.logger.Info("attempting to join meeting", "link", c.cfg.MeetingLink)
	c.setPhase(domain.PhaseJoinRequested, "join requested")

	if err := c.openMeeting(ctx, surface); err != nil {
		return err
	}
	media.EnsureMutedAndCameraOff(ctx)
	if err := c.enterName(ctx, surface); err != nil {
		return err
	}
	if err := c.clickJoin(ctx, surface); err != nil {
		return err
	}

	switch phase := c.PollStatus(ctx); phase {
	case domain.PhaseJoined:
		c.logger.Info("joined meeting")
		c.startRecording(ctx)
	case domain.PhaseWaiting:
		c.logger.Info("waiting for host approval")
	case domain.PhaseEnded:
		c.logger.Warn("meeting already ended after join")
		c.finish(domain.PhaseEnded, domain.StopReasonEnded)
	default:
		c.logger.Warn("meeting status unclear, join attempt completed", "status", phase)
	}
	return ctx.Err()
}

func (c *SessionController) openMeeting(ctx context.Context, surface ports.ControlSurface) error {
	variants := meetingURLVariants(c.cfg.MeetingLink, c.cfg.ConferenceHost)
	for i, url := range variants {
		c.logger.Info("trying url variation", "attempt", i+1, "url", url)
		if err := surface.Navigate(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("error with url variation", "attempt", i+1, "error", err)
			continue
		}
		if !sleepContext(ctx, c.cfg.SettleDelay) {
			return ctx.Err()
		}

		content, err := surface.PageContent(ctx)
		if err != nil {
			c.logger.Warn("error reading page for url variation", "attempt", i+1, "error", err)
			continue
		}
		phrase, restricted := c.catalog.Match(phrases.Restriction, content)
		if !restricted {
			c.logger.Info("url variation accepted", "attempt", i+1)
			return nil
		}
		c.logger.Info("restriction detected with url variation", "attempt", i+1, "phrase", phrase)
	}
	c.logger.Warn("all url variations showed restrictions, continuing in degraded mode")
	return nil
}

func (c *SessionController) enterName(ctx context.Context, surface ports.ControlSurface) error {
	input, sel, ok := firstMatch(ctx, surface, nameSelectors, c.cfg.ElementWait, c.cfg.ElementPoll)
	if !ok {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Info("name input not found or not required")
		return nil
	}
	if err := input.Clear(ctx); err != nil {
		c.logger.Warn("error clearing name input", "selector", sel.String(), "error", err)
	}
	if err := input.Type(ctx, c.cfg.DisplayName); err != nil {
		c.logger.Warn("error entering name", "selector", sel.String(), "error", err)
		return nil
	}
	c.logger.Info("name entered", "name", c.cfg.DisplayName)
	if !sleepContext(ctx, c.cfg.NameSettle) {
		return ctx.Err()
	}
	return nil
}

func (c *SessionController) clickJoin(ctx context.Context, surface ports.ControlSurface) error {
	button, sel, ok := firstMatch(ctx, surface, joinSelectors, c.cfg.ElementWait, c.cfg.ElementPoll)
	if !ok {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("could not find join button")
		c.screenshot(ctx, "no_join_button")
		c.events.SessionError(domain.ErrorCodeJoin, ErrJoinButtonNotFound.Error())
		c.setPhase(domain.PhaseError, "join button not found")
		return ErrJoinButtonNotFound
	}
	c.logger.Info("found join button", "selector", sel.String())

	forced, err := clickElement(ctx, button)
	if err != nil {
		c.logger.Error("both click methods failed", "error", err)
		c.screenshot(ctx, "join_click_failed")
		c.events.SessionError(domain.ErrorCodeJoin, err.Error())
		c.setPhase(domain.PhaseError, "join click failed")
		return fmt.Errorf("%w: %w", ErrJoinClickFailed, err)
	}
	c.logger.Info("join button clicked", "forced", forced)

	if !sleepContext(ctx, c.cfg.PostClickDelay) {
		return ctx.Err()
	}
	return nil
}

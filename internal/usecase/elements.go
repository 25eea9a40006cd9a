package usecase

import (
	"context"
	"time"

	"meetbot/internal/ports"
)

// waitForVisible polls one selector until it yields a visible, enabled
// element or the wait expires.
func waitForVisible(ctx context.Context, surface ports.ControlSurface, sel ports.Selector, wait, poll time.Duration) (ports.Element, bool) {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	deadline := time.Now().Add(wait)
	for {
		if elem, ok := firstVisible(ctx, surface, sel); ok {
			return elem, true
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return nil, false
		}
		if !sleepContext(ctx, min(poll, time.Until(deadline))) {
			return nil, false
		}
	}
}

// firstMatch tries each selector in order with its own bounded wait.
func firstMatch(ctx context.Context, surface ports.ControlSurface, selectors []ports.Selector, wait, poll time.Duration) (ports.Element, ports.Selector, bool) {
	for _, sel := range selectors {
		if elem, ok := waitForVisible(ctx, surface, sel, wait, poll); ok {
			return elem, sel, true
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, ports.Selector{}, false
}

func firstVisible(ctx context.Context, surface ports.ControlSurface, sel ports.Selector) (ports.Element, bool) {
	elems, err := surface.FindElements(ctx, sel)
	if err != nil {
		return nil, false
	}
	for _, elem := range elems {
		if elem.IsVisible(ctx) && elem.IsEnabled(ctx) {
			return elem, true
		}
	}
	return nil, false
}

// clickElement tries a native click and falls back to a script click.
func clickElement(ctx context.Context, elem ports.Element) (forced bool, err error) {
	if err := elem.Click(ctx); err == nil {
		return false, nil
	}
	if err := elem.ForceClick(ctx); err != nil {
		return true, err
	}
	return true, nil
}

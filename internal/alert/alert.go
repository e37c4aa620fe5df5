// Package alert delivers profitable deals to the operator.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bryan-buckman/dealscout/internal/model"
)

// Notifier delivers one opportunity.
type Notifier interface {
	Notify(ctx context.Context, o model.Opportunity) error
}

// Multi sends every opportunity to all notifiers. A failing notifier does
// not stop the others; all failures are joined into the returned error.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti skips nil notifiers.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of configured notifiers.
func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Notify(ctx context.Context, o model.Opportunity) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, o); err != nil {
			m.logger.Warn("alert delivery failed", "notifier", fmt.Sprintf("%T", n), "product", o.ProductName, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subject renders the alert headline.
func Subject(o model.Opportunity) string {
	return fmt.Sprintf("Profitable deal: +%s €", o.Profit.StringFixed(2))
}

// Body renders the plain-text alert.
func Body(o model.Opportunity) string {
	s := fmt.Sprintf("New profitable deal found!\n\n"+
		"Product: %s\n"+
		"Source: %s\n"+
		"Asking price: %s €\n"+
		"Resale price (net): %s €\n"+
		"Fees: %s €\n"+
		"Profit: %s €\n",
		o.ProductName, o.SourceURL,
		o.AskingPrice.StringFixed(2), o.ResalePrice.StringFixed(2),
		o.FeeAmount.StringFixed(2), o.Profit.StringFixed(2))
	if o.BundleSize > 1 {
		s += fmt.Sprintf("Bundle: part of %d products sharing the asking price\n", o.BundleSize)
	}
	if o.EntryTitle != "" {
		s += "\nEntry: " + o.EntryTitle + "\n"
	}
	s += "Link: " + o.ProductURL + "\n"
	return s
}

package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sp18-himanshu-chauhan2/trendsage/internal/store"
)

// Notification carries a refreshed result batch to a subscriber.
type Notification struct {
	Query          store.TrendQuery    `json:"query"`
	Version        int                 `json:"version"`
	Results        []store.TrendResult `json:"results"`
	Recipient      string              `json:"recipient"`
	DetailURL      string              `json:"detail_url"`
	UnsubscribeURL string              `json:"unsubscribe_url"`
}

// Notifier delivers notifications to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new notification manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

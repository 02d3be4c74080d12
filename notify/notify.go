// Package notify reports run outcomes to the operator over one or more
// channels. Notification delivery failures are reported to the caller but
// are never meant to fail a run.
package notify

import (
	"context"
	"errors"
)

// Notifier sends an outbound message to the configured operator channel.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Multi fans out a notification to several channels. Every channel is
// attempted; the errors of failed ones are joined.
type Multi []Notifier

var _ Notifier = (Multi)(nil)

// Notify implements the Notifier interface.
func (m Multi) Notify(ctx context.Context, subject, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

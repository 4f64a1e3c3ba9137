// Package notify delivers operator alerts through push and email providers.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Message is the content to be delivered by a Provider.
type Message struct {
	Subject string
	Body    string
}

// Provider is the interface for alert delivery backends.
type Provider interface {
	// Name returns the provider identifier (e.g. "bark").
	Name() string
	// Send delivers the message using the provider's transport.
	Send(ctx context.Context, msg Message) error
}

// ErrNoProviders is returned by an empty Multi.
var ErrNoProviders = errors.New("no alert providers configured")

// Multi fans a message out to several providers. Delivery counts as
// successful when at least one provider accepts the message.
type Multi []Provider

// Name returns "multi".
func (m Multi) Name() string { return "multi" }

// Send tries every provider and joins their errors when all fail.
func (m Multi) Send(ctx context.Context, msg Message) error {
	if len(m) == 0 {
		return ErrNoProviders
	}
	var errsOut []error
	delivered := false
	for _, p := range m {
		if err := p.Send(ctx, msg); err != nil {
			errsOut = append(errsOut, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return errors.Join(errsOut...)
}

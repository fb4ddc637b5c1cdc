// Package notify delivers best-effort messages to booking participants.
package notify

import "context"

type Message struct {
	To      string
	Subject string
	Body    string
}

type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
	ProviderID() string
}

type Noop struct{}

func (Noop) ProviderID() string { return "noop" }

func (Noop) Send(context.Context, Message) error { return nil }

package adapter

import "context"

// Alerter notifies operators about conditions that need a human, such as a
// captured payment whose subscription could not be stored.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

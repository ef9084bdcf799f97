// Package push delivers notifications to user devices through an external
// push gateway.
package push

import (
	"context"
)

// Outcome classifies one delivery attempt.
type Outcome int

const (
	Delivered Outcome = iota
	TransientFailure
	PermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	}
	return "unknown"
}

// Result is the gateway's answer. Reason is empty on delivery.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Delivery builds a delivered result.
func Delivery() Result { return Result{Outcome: Delivered} }

// Transient builds a retryable failure.
func Transient(reason string) Result { return Result{Outcome: TransientFailure, Reason: reason} }

// Permanent builds a non-retryable failure.
func Permanent(reason string) Result { return Result{Outcome: PermanentFailure, Reason: reason} }

// Destination identifies a device.
type Destination struct {
	Token    string
	Platform string
}

// Gateway sends a push message. Implementations never return errors; every
// failure is classified into the Result.
type Gateway interface {
	Name() string
	Healthy() bool
	Send(ctx context.Context, dest Destination, title, body string, metadata map[string]string) Result
}

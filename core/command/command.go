// Package command defines the contract of the collaborators that apply
// charging decisions to devices.
package command

import (
	"context"
	"errors"
)

var (
	// ErrAckTimeout is returned when no acknowledgment is received in time.
	ErrAckTimeout = errors.New("timeout waiting for ack")
	// ErrUnknownConsumer is returned for consumers the commander cannot reach.
	ErrUnknownConsumer = errors.New("unknown consumer")
	// ErrRejected is returned when the device refuses a command.
	ErrRejected = errors.New("command rejected")
)

// Action names a device command.
type Action string

const (
	ActionStart      Action = "start"
	ActionStop       Action = "stop"
	ActionSetCurrent Action = "set_current"
	ActionSetPhases  Action = "set_phases"
)

// Commander applies commands to consumers addressed by id. Implementations
// must return once ctx is done.
type Commander interface {
	Start(ctx context.Context, consumerID string) error
	Stop(ctx context.Context, consumerID string) error
	SetCurrent(ctx context.Context, consumerID string, amps float64) error
	SetPhases(ctx context.Context, consumerID string, phases int) error
}

// Call is one command as sent to a device.
type Call struct {
	ConsumerID string  `json:"consumer_id"`
	Action     Action  `json:"action"`
	Value      float64 `json:"value,omitempty"`
}

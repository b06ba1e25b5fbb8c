package transport

import (
	"context"
	"errors"
)

// State models the connection lifecycle. Only StateOpen permits sends; a
// logged-out close is terminal and requires operator re-authentication.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by send operations outside StateOpen.
var ErrNotConnected = errors.New("transport: not connected")

// Transport delivers messages to the one fixed destination conversation.
// The destination is part of the transport's identity, not a send argument.
type Transport interface {
	SendText(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, png []byte, caption string) error
	State() State
	StateChanges() <-chan State
	Close()
}

package gateway

import (
	"errors"
	"fmt"

	"github.com/studiowebux/reqgate/internal/types"
)

// Kind classifies a failed call
type Kind int

const (
	// KindSetup means the request could not be built or sent
	KindSetup Kind = iota + 1
	// KindNetwork means the request went out but no response came back
	KindNetwork
	// KindServer means a response came back with a rejected status or a
	// non-success envelope code
	KindServer
	// KindInterceptor means a pre-dispatch stage failed
	KindInterceptor
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindInterceptor:
		return "interceptor"
	default:
		return "unknown"
	}
}

// MsgInterfaceNotInvoked is the message of every interceptor failure
const MsgInterfaceNotInvoked = "interface not properly invoked"

// Error is the single error shape returned by Execute. Error() returns
// Message unchanged so it can be shown to users as is.
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches the kind sentinels below
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrSetup       = &Error{Kind: KindSetup}
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrServer      = &Error{Kind: KindServer}
	ErrInterceptor = &Error{Kind: KindInterceptor}
)

// statusMessage builds the "-{status}：{text}" form used for every
// response-derived failure. The separator is a full-width colon.
func statusMessage(status int, text string) string {
	return fmt.Sprintf("-%d：%s", status, text)
}

// classify turns whatever the dispatch stage returned into an *Error
func classify(err error) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}

	var terr *types.TransportError
	if errors.As(err, &terr) {
		switch {
		case terr.Response != nil:
			return &Error{
				Kind:    KindServer,
				Message: statusMessage(terr.Response.Status, terr.Response.StatusText),
				err:     err,
			}
		case terr.Request != nil:
			return &Error{
				Kind:    KindNetwork,
				Message: statusMessage(terr.Request.Status, terr.Request.StatusText),
				err:     err,
			}
		default:
			return &Error{Kind: KindSetup, Message: terr.Message, err: err}
		}
	}

	return &Error{Kind: KindSetup, Message: err.Error(), err: err}
}

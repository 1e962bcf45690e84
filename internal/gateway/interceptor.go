package gateway

import (
	"context"

	"github.com/studiowebux/reqgate/internal/types"
)

// Interceptor is one pre-dispatch stage. Stages run in order: OnRequest runs
// while no stage has failed, OnError runs once one has. OnError may recover
// by returning nil, in which case later OnRequest hooks run again.
// Either hook may be nil.
type Interceptor struct {
	Name      string
	OnRequest func(ctx context.Context, req *types.TransportRequest) error
	OnError   func(ctx context.Context, err error) error
}

// GuardInterceptor passes every request through untouched and replaces an
// earlier stage failure with a KindInterceptor error. New installs it as the
// last stage.
var GuardInterceptor = Interceptor{
	Name: "guard",
	OnError: func(_ context.Context, err error) error {
		return &Error{Kind: KindInterceptor, Message: MsgInterfaceNotInvoked, err: err}
	},
}

// HeaderInterceptor sets a static header on every request
func HeaderInterceptor(name, value string) Interceptor {
	return Interceptor{
		Name: "header:" + name,
		OnRequest: func(_ context.Context, req *types.TransportRequest) error {
			if req.Headers == nil {
				req.Headers = make(map[string]string)
			}
			types.SetHeader(req.Headers, name, value)
			return nil
		},
	}
}

func runInterceptors(ctx context.Context, chain []Interceptor, req *types.TransportRequest) error {
	var err error
	for _, ic := range chain {
		if err == nil {
			if ic.OnRequest != nil {
				err = ic.OnRequest(ctx, req)
			}
			continue
		}
		if ic.OnError != nil {
			err = ic.OnError(ctx, err)
		}
	}
	return err
}

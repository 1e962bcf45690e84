package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/studiowebux/reqgate/internal/events"
	"github.com/studiowebux/reqgate/internal/notify"
	"github.com/studiowebux/reqgate/internal/types"
)

// Transport performs the network call
type Transport interface {
	RoundTrip(ctx context.Context, req *types.TransportRequest) (*types.TransportResponse, error)
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, req *types.TransportRequest) (*types.TransportResponse, error)

func (f TransportFunc) RoundTrip(ctx context.Context, req *types.TransportRequest) (*types.TransportResponse, error) {
	return f(ctx, req)
}

// CredentialProvider looks up credentials by key. It is called on every
// call that needs a token and must not block.
type CredentialProvider interface {
	Get(key string) (string, bool)
}

// LoadingBus receives start/stop loading signals
type LoadingBus interface {
	Publish(name events.Name, payload string)
}

// Notifier displays success and error text
type Notifier interface {
	NotifySuccess(text string)
	NotifyError(text string)
}

// Recorder receives one record per settled call
type Recorder interface {
	Record(ctx context.Context, rec types.CallRecord) error
}

// Gateway wraps one outbound call with token injection, loading signals,
// outcome classification and notifications. It holds no per-call state and
// is safe for concurrent use.
type Gateway struct {
	transport    Transport
	credentials  CredentialProvider
	bus          LoadingBus
	notifier     Notifier
	recorder     Recorder
	interceptors []Interceptor
	log          zerolog.Logger
	profile      string
}

// Option configures a Gateway
type Option func(*Gateway)

// WithCredentials sets the token source
func WithCredentials(p CredentialProvider) Option {
	return func(g *Gateway) { g.credentials = p }
}

// WithLoadingBus sets where loading signals are published
func WithLoadingBus(b LoadingBus) Option {
	return func(g *Gateway) {
		if b != nil {
			g.bus = b
		}
	}
}

// WithNotifier sets the notification sink
func WithNotifier(n Notifier) Option {
	return func(g *Gateway) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithRecorder sets the history recorder
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// WithInterceptors adds pre-dispatch stages, run before the guard stage
func WithInterceptors(ics ...Interceptor) Option {
	return func(g *Gateway) { g.interceptors = append(g.interceptors, ics...) }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// WithProfile tags history records with a profile name
func WithProfile(name string) Option {
	return func(g *Gateway) { g.profile = name }
}

// New creates a gateway around transport
func New(transport Transport, opts ...Option) *Gateway {
	g := &Gateway{
		transport: transport,
		bus:       events.Discard,
		notifier:  notify.Discard,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.interceptors = append(g.interceptors, GuardInterceptor)
	return g
}

// Execute performs one call described by spec and returns the envelope's
// data member on business success. Every failure is returned as *Error.
func (g *Gateway) Execute(ctx context.Context, spec types.RequestSpec) (json.RawMessage, error) {
	return g.execute(ctx, "", spec)
}

// ExecuteNamed is Execute with a request name attached to the history record
func (g *Gateway) ExecuteNamed(ctx context.Context, name string, spec types.RequestSpec) (json.RawMessage, error) {
	return g.execute(ctx, name, spec)
}

func (g *Gateway) execute(ctx context.Context, name string, spec types.RequestSpec) (json.RawMessage, error) {
	callID := uuid.NewString()
	start := time.Now()

	target := spec.URL
	if spec.NeedToken {
		target = AppendToken(target, g.token())
	}

	log := g.log.With().
		Str("call_id", callID).
		Str("method", spec.Method).
		Str("url", RedactToken(target)).
		Logger()

	if spec.ShowLoading {
		g.bus.Publish(events.StartLoading, spec.LoadingText)
	}

	req := transportRequest(spec, target)
	log.Debug().Msg("dispatching request")

	resp, err := g.dispatch(ctx, req)

	if spec.HideLoading {
		g.bus.Publish(events.StopLoading, "")
	}

	var (
		payload json.RawMessage
		gerr    *Error
		code    string
	)
	if err != nil {
		gerr = classify(err)
	} else {
		payload, code, gerr = settle(resp)
	}

	duration := time.Since(start)
	status := statusOf(resp, err)

	if gerr != nil {
		log.Debug().
			Int("status", status).
			Str("kind", gerr.Kind.String()).
			Dur("duration", duration).
			Msg(gerr.Message)
		if spec.ShowError {
			g.notifier.NotifyError(spec.ErrorText + gerr.Message)
		}
	} else {
		log.Debug().
			Int("status", status).
			Dur("duration", duration).
			Msg("request succeeded")
		if spec.ShowSuccess {
			g.notifier.NotifySuccess(spec.SuccessText)
		}
	}

	if g.recorder != nil {
		rec := types.CallRecord{
			CallID:      callID,
			Timestamp:   start,
			ProfileName: g.profile,
			RequestName: name,
			Method:      spec.Method,
			URL:         RedactToken(joinForRecord(spec.BaseURL, target)),
			Status:      status,
			Code:        code,
			Outcome:     types.OutcomeSuccess,
			Duration:    duration.Milliseconds(),
			PayloadSize: len(payload),
		}
		if gerr != nil {
			rec.Outcome = types.OutcomeFailure
			rec.ErrorKind = gerr.Kind.String()
			rec.Message = gerr.Message
		}
		if rerr := g.recorder.Record(ctx, rec); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to record call")
		}
	}

	if gerr != nil {
		return nil, gerr
	}
	return payload, nil
}

func (g *Gateway) dispatch(ctx context.Context, req *types.TransportRequest) (*types.TransportResponse, error) {
	if err := runInterceptors(ctx, g.interceptors, req); err != nil {
		return nil, err
	}
	if g.transport == nil {
		return nil, fmt.Errorf("no transport configured")
	}
	return g.transport.RoundTrip(ctx, req)
}

func (g *Gateway) token() string {
	if g.credentials == nil {
		return MissingToken
	}
	value, ok := g.credentials.Get(TokenKey)
	if !ok {
		return MissingToken
	}
	return value
}

// settle applies the business-level check to an accepted response
func settle(resp *types.TransportResponse) (json.RawMessage, string, *Error) {
	if resp == nil {
		return nil, "", &Error{Kind: KindSetup, Message: "transport returned no response"}
	}

	var env types.Envelope
	if err := json.Unmarshal(resp.Data, &env); err != nil {
		return nil, "", &Error{
			Kind:    KindServer,
			Message: statusMessage(resp.Status, "invalid response envelope"),
			err:     err,
		}
	}

	if !env.IsSuccess() {
		return nil, env.CodeString(), &Error{
			Kind:    KindServer,
			Message: statusMessage(resp.Status, env.Message()),
		}
	}

	payload := env.Data
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return payload, env.CodeString(), nil
}

func transportRequest(spec types.RequestSpec, target string) *types.TransportRequest {
	spec = spec.Clone()
	return &types.TransportRequest{
		Method:             spec.Method,
		BaseURL:            spec.BaseURL,
		URL:                target,
		Params:             spec.Params,
		ParamsSerializer:   spec.ParamsSerializer,
		Data:               spec.Data,
		TransformRequest:   spec.TransformRequest,
		Headers:            spec.Headers,
		WithCredentials:    spec.WithCredentials,
		Auth:               spec.Auth,
		OnUploadProgress:   spec.OnUploadProgress,
		OnDownloadProgress: spec.OnDownloadProgress,
		Timeout:            spec.Timeout,
		ResponseType:       spec.ResponseType,
		MaxContentLength:   spec.MaxContentLength,
		ResponseEncoding:   spec.ResponseEncoding,
		ValidateStatus:     spec.ValidateStatus,
		TransformResponse:  spec.TransformResponse,
		Proxy:              spec.Proxy,
		TLS:                spec.TLS,
	}
}

func statusOf(resp *types.TransportResponse, err error) int {
	if resp != nil {
		return resp.Status
	}
	var terr *types.TransportError
	if errors.As(err, &terr) {
		if terr.Response != nil {
			return terr.Response.Status
		}
		if terr.Request != nil {
			return terr.Request.Status
		}
	}
	return 0
}

func joinForRecord(base, target string) string {
	if u, err := url.Parse(target); base == "" || (err == nil && u.IsAbs()) {
		return target
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(target, "/")
}

// Do executes spec and decodes the payload into T
func Do[T any](ctx context.Context, g *Gateway, spec types.RequestSpec) (T, error) {
	var out T
	payload, err := g.Execute(ctx, spec)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("failed to decode payload: %w", err)
	}
	return out, nil
}

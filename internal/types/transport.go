package types

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// TransportRequest carries every transport-relevant field of a RequestSpec.
// URL already includes the token query parameter when one was required.
type TransportRequest struct {
	Method             string
	BaseURL            string
	URL                string
	Params             url.Values
	ParamsSerializer   func(url.Values) string
	Data               any
	TransformRequest   []func(data any, headers http.Header) (any, error)
	Headers            map[string]string
	WithCredentials    bool
	Auth               *BasicAuth
	OnUploadProgress   func(ProgressEvent)
	OnDownloadProgress func(ProgressEvent)
	Timeout            time.Duration
	ResponseType       string
	MaxContentLength   int64
	ResponseEncoding   string
	ValidateStatus     func(status int) bool
	TransformResponse  []func(body []byte, headers http.Header) ([]byte, error)
	Proxy              *ProxyConfig
	TLS                *TLSConfig
}

// RequestInfo identifies a request that was put on the wire.
// Status is 0 when no response arrived.
type RequestInfo struct {
	Method     string
	URL        string
	Status     int
	StatusText string
}

// TransportResponse is a settled HTTP exchange
type TransportResponse struct {
	Status     int
	StatusText string
	Headers    map[string]string
	// Data is the response body decoded to UTF-8 after TransformResponse
	Data     []byte
	Request  *RequestInfo
	Duration time.Duration
}

// TransportError is returned by a transport when a call does not settle
// with an accepted response. Response is set when the server replied,
// Request when the request was issued but no reply came back. Neither is
// set when the request could not be built.
type TransportError struct {
	Message  string
	Response *TransportResponse
	Request  *RequestInfo
	Err      error
}

func (e *TransportError) Error() string {
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Envelope is the application-level body shape: {code, msg, data}
type Envelope struct {
	Code json.RawMessage `json:"code,omitempty"`
	Msg  json.RawMessage `json:"msg,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SuccessCode is the only code value meaning business success
const SuccessCode = "0"

// IsSuccess reports whether code is the JSON string "0".
// A numeric 0 is not a success.
func (e *Envelope) IsSuccess() bool {
	var code string
	if len(e.Code) == 0 || e.Code[0] != '"' {
		return false
	}
	if err := json.Unmarshal(e.Code, &code); err != nil {
		return false
	}
	return code == SuccessCode
}

// CodeString renders the code for display and history, whatever its JSON type
func (e *Envelope) CodeString() string {
	return rawText(e.Code)
}

// Message renders msg for display; strings are unquoted
func (e *Envelope) Message() string {
	return rawText(e.Msg)
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

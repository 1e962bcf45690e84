package types

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default values applied to every RequestSpec before overrides
const (
	DefaultMethod           = http.MethodGet
	DefaultContentType      = "application/x-www-form-urlencoded"
	DefaultTimeout          = 2000 * time.Millisecond
	DefaultResponseType     = "json"
	DefaultMaxContentLength = 2000
	DefaultResponseEncoding = "utf8"
	DefaultLoadingText      = "Loading data"
	DefaultSuccessText      = "Data loaded successfully"
	DefaultErrorText        = "Failed to load data"
)

// Response shape tags understood by the transport
const (
	ResponseTypeJSON        = "json"
	ResponseTypeText        = "text"
	ResponseTypeArrayBuffer = "arraybuffer"
	ResponseTypeBlob        = "blob"
	ResponseTypeDocument    = "document"
	ResponseTypeStream      = "stream"
)

// BasicAuth holds HTTP basic credentials. When set it replaces any
// Authorization header.
type BasicAuth struct {
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
}

// ProxyConfig describes the proxy server used for a request
type ProxyConfig struct {
	Protocol string     `json:"protocol,omitempty" yaml:"protocol,omitempty" mapstructure:"protocol"`
	Host     string     `json:"host" yaml:"host" mapstructure:"host"`
	Port     int        `json:"port" yaml:"port" mapstructure:"port"`
	Auth     *BasicAuth `json:"auth,omitempty" yaml:"auth,omitempty" mapstructure:"auth"`
}

// URL returns the proxy address as a URL
func (p *ProxyConfig) URL() *url.URL {
	scheme := p.Protocol
	if scheme == "" {
		scheme = "http"
	}
	u := &url.URL{Scheme: scheme, Host: p.Host}
	if p.Port > 0 {
		u.Host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	if p.Auth != nil {
		u.User = url.UserPassword(p.Auth.Username, p.Auth.Password)
	}
	return u
}

// ProgressEvent reports bytes transferred for an upload or download
type ProgressEvent struct {
	Loaded int64
	Total  int64 // -1 when unknown
}

// RequestSpec describes one outbound call and its UI side effects.
// Build it with DefaultRequestSpec or RequestOverrides.Apply; the zero value
// is not a usable spec.
type RequestSpec struct {
	Method           string
	BaseURL          string
	URL              string
	Params           url.Values
	ParamsSerializer func(url.Values) string
	Data             any
	TransformRequest []func(data any, headers http.Header) (any, error)
	Headers          map[string]string
	WithCredentials  bool
	Auth             *BasicAuth

	OnUploadProgress   func(ProgressEvent)
	OnDownloadProgress func(ProgressEvent)

	// Timeout of zero disables the deadline
	Timeout          time.Duration
	ResponseType     string
	MaxContentLength int64 // negative means unlimited
	ResponseEncoding string
	ValidateStatus   func(status int) bool

	TransformResponse []func(body []byte, headers http.Header) ([]byte, error)
	Proxy             *ProxyConfig
	TLS               *TLSConfig

	NeedToken   bool
	ShowLoading bool
	LoadingText string
	HideLoading bool
	ShowSuccess bool
	SuccessText string
	ShowError   bool
	ErrorText   string
}

// DefaultValidateStatus accepts 2xx statuses
func DefaultValidateStatus(status int) bool {
	return status >= 200 && status < 300
}

// DefaultRequestSpec returns a spec filled with the built-in defaults
func DefaultRequestSpec() RequestSpec {
	return RequestSpec{
		Method:           DefaultMethod,
		Headers:          map[string]string{"content-type": DefaultContentType},
		Timeout:          DefaultTimeout,
		ResponseType:     DefaultResponseType,
		MaxContentLength: DefaultMaxContentLength,
		ResponseEncoding: DefaultResponseEncoding,
		ValidateStatus:   DefaultValidateStatus,
		NeedToken:        true,
		ShowLoading:      true,
		LoadingText:      DefaultLoadingText,
		HideLoading:      true,
		ShowSuccess:      true,
		SuccessText:      DefaultSuccessText,
		ShowError:        true,
		ErrorText:        DefaultErrorText,
	}
}

// Clone returns a copy whose maps and slices can be modified independently
func (s RequestSpec) Clone() RequestSpec {
	c := s
	if s.Headers != nil {
		c.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			c.Headers[k] = v
		}
	}
	if s.Params != nil {
		c.Params = make(url.Values, len(s.Params))
		for k, v := range s.Params {
			c.Params[k] = append([]string(nil), v...)
		}
	}
	c.TransformRequest = append(c.TransformRequest[:0:0], s.TransformRequest...)
	c.TransformResponse = append(c.TransformResponse[:0:0], s.TransformResponse...)
	return c
}

// RequestOverrides is the serializable subset of RequestSpec. Nil fields
// leave the underlying value untouched so overrides can be layered:
// built-in defaults, config defaults, profile, then the request itself.
type RequestOverrides struct {
	Method           string            `json:"method,omitempty" yaml:"method,omitempty" mapstructure:"method"`
	BaseURL          string            `json:"baseURL,omitempty" yaml:"baseURL,omitempty" mapstructure:"baseURL"`
	URL              string            `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	Params           map[string]string `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
	Data             any               `json:"data,omitempty" yaml:"data,omitempty" mapstructure:"data"`
	Headers          map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`
	WithCredentials  *bool             `json:"withCredentials,omitempty" yaml:"withCredentials,omitempty" mapstructure:"withCredentials"`
	Auth             *BasicAuth        `json:"auth,omitempty" yaml:"auth,omitempty" mapstructure:"auth"`
	TimeoutMs        *int              `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	ResponseType     string            `json:"responseType,omitempty" yaml:"responseType,omitempty" mapstructure:"responseType"`
	MaxContentLength *int64            `json:"maxContentLength,omitempty" yaml:"maxContentLength,omitempty" mapstructure:"maxContentLength"`
	ResponseEncoding string            `json:"responseEncoding,omitempty" yaml:"responseEncoding,omitempty" mapstructure:"responseEncoding"`
	// AcceptStatus replaces ValidateStatus with an explicit list of accepted codes
	AcceptStatus []int        `json:"acceptStatus,omitempty" yaml:"acceptStatus,omitempty" mapstructure:"acceptStatus"`
	Proxy        *ProxyConfig `json:"proxy,omitempty" yaml:"proxy,omitempty" mapstructure:"proxy"`
	TLS          *TLSConfig   `json:"tls,omitempty" yaml:"tls,omitempty" mapstructure:"tls"`

	NeedToken   *bool   `json:"needToken,omitempty" yaml:"needToken,omitempty" mapstructure:"needToken"`
	ShowLoading *bool   `json:"showLoading,omitempty" yaml:"showLoading,omitempty" mapstructure:"showLoading"`
	LoadingText *string `json:"loadingText,omitempty" yaml:"loadingText,omitempty" mapstructure:"loadingText"`
	HideLoading *bool   `json:"hideLoading,omitempty" yaml:"hideLoading,omitempty" mapstructure:"hideLoading"`
	ShowSuccess *bool   `json:"showSuccess,omitempty" yaml:"showSuccess,omitempty" mapstructure:"showSuccess"`
	SuccessText *string `json:"successText,omitempty" yaml:"successText,omitempty" mapstructure:"successText"`
	ShowError   *bool   `json:"showError,omitempty" yaml:"showError,omitempty" mapstructure:"showError"`
	ErrorText   *string `json:"errorText,omitempty" yaml:"errorText,omitempty" mapstructure:"errorText"`
}

// Apply merges the overrides onto base and returns the result.
// Headers and params are merged key by key; everything else replaces.
func (o RequestOverrides) Apply(base RequestSpec) RequestSpec {
	spec := base.Clone()

	if o.Method != "" {
		spec.Method = o.Method
	}
	if o.BaseURL != "" {
		spec.BaseURL = o.BaseURL
	}
	if o.URL != "" {
		spec.URL = o.URL
	}
	if len(o.Params) > 0 {
		if spec.Params == nil {
			spec.Params = url.Values{}
		}
		for k, v := range o.Params {
			spec.Params.Set(k, v)
		}
	}
	if o.Data != nil {
		spec.Data = o.Data
	}
	if len(o.Headers) > 0 {
		if spec.Headers == nil {
			spec.Headers = make(map[string]string)
		}
		for k, v := range o.Headers {
			SetHeader(spec.Headers, k, v)
		}
	}
	if o.WithCredentials != nil {
		spec.WithCredentials = *o.WithCredentials
	}
	if o.Auth != nil {
		auth := *o.Auth
		spec.Auth = &auth
	}
	if o.TimeoutMs != nil {
		spec.Timeout = time.Duration(*o.TimeoutMs) * time.Millisecond
	}
	if o.ResponseType != "" {
		spec.ResponseType = o.ResponseType
	}
	if o.MaxContentLength != nil {
		spec.MaxContentLength = *o.MaxContentLength
	}
	if o.ResponseEncoding != "" {
		spec.ResponseEncoding = o.ResponseEncoding
	}
	if len(o.AcceptStatus) > 0 {
		accepted := append([]int(nil), o.AcceptStatus...)
		spec.ValidateStatus = func(status int) bool {
			for _, s := range accepted {
				if s == status {
					return true
				}
			}
			return false
		}
	}
	if o.Proxy != nil {
		spec.Proxy = o.Proxy
	}
	if o.TLS != nil {
		spec.TLS = o.TLS
	}

	setBool(&spec.NeedToken, o.NeedToken)
	setBool(&spec.ShowLoading, o.ShowLoading)
	setString(&spec.LoadingText, o.LoadingText)
	setBool(&spec.HideLoading, o.HideLoading)
	setBool(&spec.ShowSuccess, o.ShowSuccess)
	setString(&spec.SuccessText, o.SuccessText)
	setBool(&spec.ShowError, o.ShowError)
	setString(&spec.ErrorText, o.ErrorText)

	return spec
}

// Merge returns o layered on top of base: fields set in o win
func (o RequestOverrides) Merge(base RequestOverrides) RequestOverrides {
	out := base
	if o.Method != "" {
		out.Method = o.Method
	}
	if o.BaseURL != "" {
		out.BaseURL = o.BaseURL
	}
	if o.URL != "" {
		out.URL = o.URL
	}
	out.Params = mergeMaps(base.Params, o.Params)
	if o.Data != nil {
		out.Data = o.Data
	}
	if len(o.Headers) > 0 {
		headers := make(map[string]string, len(base.Headers)+len(o.Headers))
		for k, v := range base.Headers {
			headers[k] = v
		}
		for k, v := range o.Headers {
			SetHeader(headers, k, v)
		}
		out.Headers = headers
	}
	if o.WithCredentials != nil {
		out.WithCredentials = o.WithCredentials
	}
	if o.Auth != nil {
		out.Auth = o.Auth
	}
	if o.TimeoutMs != nil {
		out.TimeoutMs = o.TimeoutMs
	}
	if o.ResponseType != "" {
		out.ResponseType = o.ResponseType
	}
	if o.MaxContentLength != nil {
		out.MaxContentLength = o.MaxContentLength
	}
	if o.ResponseEncoding != "" {
		out.ResponseEncoding = o.ResponseEncoding
	}
	if len(o.AcceptStatus) > 0 {
		out.AcceptStatus = o.AcceptStatus
	}
	if o.Proxy != nil {
		out.Proxy = o.Proxy
	}
	if o.TLS != nil {
		out.TLS = o.TLS
	}
	if o.NeedToken != nil {
		out.NeedToken = o.NeedToken
	}
	if o.ShowLoading != nil {
		out.ShowLoading = o.ShowLoading
	}
	if o.LoadingText != nil {
		out.LoadingText = o.LoadingText
	}
	if o.HideLoading != nil {
		out.HideLoading = o.HideLoading
	}
	if o.ShowSuccess != nil {
		out.ShowSuccess = o.ShowSuccess
	}
	if o.SuccessText != nil {
		out.SuccessText = o.SuccessText
	}
	if o.ShowError != nil {
		out.ShowError = o.ShowError
	}
	if o.ErrorText != nil {
		out.ErrorText = o.ErrorText
	}
	return out
}

// NamedRequest is one entry of a request file
type NamedRequest struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Filter and Query are JMESPath expressions applied to the payload
	Filter string `json:"filter,omitempty" yaml:"filter,omitempty"`
	Query  string `json:"query,omitempty" yaml:"query,omitempty"`
	// Extract maps session variable names to JMESPath expressions evaluated
	// on a successful payload. The name "token" replaces the session token.
	Extract          map[string]string `json:"extract,omitempty" yaml:"extract,omitempty"`
	RequestOverrides `json:",inline" yaml:",inline"`
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func mergeMaps(base, over map[string]string) map[string]string {
	if len(base) == 0 && len(over) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// SetHeader sets key in h, replacing any entry that differs only in case
func SetHeader(h map[string]string, key, value string) {
	for k := range h {
		if k != key && strings.EqualFold(k, key) {
			delete(h, k)
		}
	}
	h[key] = value
}

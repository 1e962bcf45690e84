package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/studiowebux/reqgate/internal/types"
)

// HTTPTransport performs gateway calls over net/http. Clients are cached per
// TLS and proxy configuration and share one cookie jar, which is only
// attached to requests that ask for credentials.
type HTTPTransport struct {
	mu      sync.Mutex
	clients map[string]*http.Client
	jar     http.CookieJar
	log     zerolog.Logger
}

// Option configures an HTTPTransport
type Option func(*HTTPTransport)

// WithLogger sets the transport logger
func WithLogger(l zerolog.Logger) Option {
	return func(t *HTTPTransport) { t.log = l }
}

// WithCookieJar replaces the shared cookie jar
func WithCookieJar(jar http.CookieJar) Option {
	return func(t *HTTPTransport) { t.jar = jar }
}

// NewHTTPTransport creates a transport with an empty cookie jar
func NewHTTPTransport(opts ...Option) *HTTPTransport {
	jar, _ := cookiejar.New(nil)
	t := &HTTPTransport{
		clients: make(map[string]*http.Client),
		jar:     jar,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip sends req and returns the accepted response. Anything else is a
// *types.TransportError describing how far the call got.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req *types.TransportRequest) (*types.TransportResponse, error) {
	startTime := time.Now()

	target, err := BuildURL(req.BaseURL, req.URL, req.Params, req.ParamsSerializer)
	if err != nil {
		return nil, setupError("invalid URL", err)
	}

	decoder, err := newDecoder(req.ResponseEncoding)
	if err != nil {
		return nil, setupError("unsupported response encoding", err)
	}

	headers := make(http.Header, len(req.Headers))
	for key, value := range req.Headers {
		headers.Set(key, value)
	}

	data := req.Data
	for _, transform := range req.TransformRequest {
		data, err = transform(data, headers)
		if err != nil {
			return nil, setupError("request transform failed", err)
		}
	}

	body, size, err := encodeBody(data, headers)
	if err != nil {
		return nil, setupError("failed to encode body", err)
	}
	if body != nil && req.OnUploadProgress != nil {
		body = &progressReader{r: body, total: size, fn: req.OnUploadProgress}
	}

	client, err := t.client(req)
	if err != nil {
		return nil, setupError("failed to configure HTTP client", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, body)
	if err != nil {
		return nil, setupError("failed to create request", err)
	}
	httpReq.Header = headers
	if body != nil && size >= 0 {
		httpReq.ContentLength = size
	}
	if req.Auth != nil {
		httpReq.Header.Del("Authorization")
		httpReq.SetBasicAuth(req.Auth.Username, req.Auth.Password)
	}

	info := &types.RequestInfo{Method: httpReq.Method, URL: target}

	t.log.Debug().Str("method", info.Method).Msg("sending request")

	resp, err := client.Do(httpReq)
	if err != nil {
		info.StatusText = categorizeError(err)
		message := err.Error()
		if info.StatusText == CategoryTimeout {
			message = fmt.Sprintf("timeout of %dms exceeded", req.Timeout.Milliseconds())
		}
		return nil, &types.TransportError{Message: message, Request: info, Err: err}
	}
	defer resp.Body.Close()

	limit := req.MaxContentLength
	if limit >= 0 && resp.ContentLength > limit {
		return nil, contentLengthError(info, limit)
	}

	var reader io.Reader = resp.Body
	if req.OnDownloadProgress != nil {
		reader = &progressReader{r: reader, total: resp.ContentLength, fn: req.OnDownloadProgress}
	}
	if limit >= 0 {
		reader = io.LimitReader(reader, limit+1)
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		info.StatusText = categorizeError(err)
		return nil, &types.TransportError{
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Request: info,
			Err:     err,
		}
	}
	if limit >= 0 && int64(len(raw)) > limit {
		return nil, contentLengthError(info, limit)
	}

	respHeaders := make(http.Header, len(resp.Header))
	for key, values := range resp.Header {
		respHeaders[key] = values
	}

	info.Status = resp.StatusCode
	info.StatusText = statusText(resp)

	// the server replied, so failures from here on carry the response
	replied := func(msg string, err error) *types.TransportError {
		return &types.TransportError{
			Message: fmt.Sprintf("%s: %v", msg, err),
			Response: &types.TransportResponse{
				Status:     resp.StatusCode,
				StatusText: info.StatusText,
				Headers:    flattenHeaders(respHeaders),
				Data:       raw,
				Request:    info,
				Duration:   time.Since(startTime),
			},
			Request: info,
			Err:     err,
		}
	}

	bodyBytes, err := decoder.decode(raw)
	if err != nil {
		return nil, replied("failed to decode response body", err)
	}
	for _, transform := range req.TransformResponse {
		bodyBytes, err = transform(bodyBytes, respHeaders)
		if err != nil {
			return nil, replied("response transform failed", err)
		}
	}
	if req.ResponseType == "" || req.ResponseType == types.ResponseTypeJSON {
		bodyBytes = bytes.TrimPrefix(bodyBytes, []byte("\xef\xbb\xbf"))
	}

	result := &types.TransportResponse{
		Status:     resp.StatusCode,
		StatusText: info.StatusText,
		Headers:    flattenHeaders(respHeaders),
		Data:       bodyBytes,
		Request:    info,
		Duration:   time.Since(startTime),
	}

	t.log.Debug().
		Int("status", result.Status).
		Str("size", FormatSize(len(bodyBytes))).
		Str("duration", FormatDuration(result.Duration.Milliseconds())).
		Msg("response received")

	if req.ValidateStatus != nil && !req.ValidateStatus(resp.StatusCode) {
		return nil, &types.TransportError{
			Message:  fmt.Sprintf("Request failed with status code %d", resp.StatusCode),
			Response: result,
			Request:  info,
		}
	}

	return result, nil
}

// client returns a cached client for the request's TLS and proxy settings
func (t *HTTPTransport) client(req *types.TransportRequest) (*http.Client, error) {
	key := clientKey(req)

	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.clients[key]
	if !ok {
		var err error
		c, err = buildHTTPClient(req.TLS, req.Proxy)
		if err != nil {
			return nil, err
		}
		t.clients[key] = c
	}

	if !req.WithCredentials {
		return c, nil
	}
	withJar := *c
	withJar.Jar = t.jar
	return &withJar, nil
}

func clientKey(req *types.TransportRequest) string {
	var b strings.Builder
	if req.TLS != nil {
		fmt.Fprintf(&b, "tls:%s|%s|%s|%t;", req.TLS.CertFile, req.TLS.KeyFile, req.TLS.CAFile, req.TLS.InsecureSkipVerify)
	}
	if req.Proxy != nil {
		b.WriteString("proxy:" + req.Proxy.URL().String())
	}
	return b.String()
}

// buildHTTPClient creates an HTTP client with optional TLS/mTLS and proxy
// configuration. Timeouts come from the request context.
func buildHTTPClient(tlsConfig *types.TLSConfig, proxy *types.ProxyConfig) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if tlsConfig != nil {
		tlsCfg := &tls.Config{
			InsecureSkipVerify: tlsConfig.InsecureSkipVerify,
		}

		// Load client certificate if provided (for mTLS)
		if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}

		if tlsConfig.CAFile != "" {
			caCert, err := os.ReadFile(tlsConfig.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate: %w", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to parse CA certificate")
			}
			tlsCfg.RootCAs = caCertPool
		}

		transport.TLSClientConfig = tlsCfg
	}

	if proxy != nil {
		if proxy.Host == "" {
			return nil, fmt.Errorf("proxy host is required")
		}
		transport.Proxy = http.ProxyURL(proxy.URL())
	}

	return &http.Client{Transport: transport}, nil
}

// BuildURL joins base and target unless target is absolute, then appends
// params. serializer, when set, replaces url.Values.Encode.
func BuildURL(base, target string, params url.Values, serializer func(url.Values) string) (string, error) {
	full := target
	if u, err := url.Parse(target); err != nil {
		return "", err
	} else if !u.IsAbs() && base != "" {
		full = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(target, "/")
	}

	if len(params) > 0 {
		encoded := ""
		if serializer != nil {
			encoded = serializer(params)
		} else {
			encoded = params.Encode()
		}
		if encoded != "" {
			if hash := strings.IndexByte(full, '#'); hash >= 0 {
				full = full[:hash]
			}
			sep := "&"
			if !strings.Contains(full, "?") {
				sep = "?"
			}
			full += sep + encoded
		}
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", full)
	}
	return full, nil
}

func setupError(msg string, err error) *types.TransportError {
	return &types.TransportError{Message: fmt.Sprintf("%s: %v", msg, err), Err: err}
}

func contentLengthError(info *types.RequestInfo, limit int64) *types.TransportError {
	message := fmt.Sprintf("maxContentLength size of %d exceeded", limit)
	info.StatusText = message
	return &types.TransportError{Message: message, Request: info}
}

func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}

func flattenHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for key, values := range h {
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}

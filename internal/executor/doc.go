/*
Package executor is the HTTP transport behind the request gateway.

# Overview

HTTPTransport implements gateway.Transport on top of net/http:
  - Base URL joining and query parameter serialization
  - Request body encoding (raw, form, JSON) after TransformRequest hooks
  - Basic auth, proxy and TLS/mTLS configuration
  - Per-request timeouts through the call context
  - Response size limits, charset decoding and TransformResponse hooks
  - Upload and download progress callbacks

# Error Handling

Every failure is a *types.TransportError and says how far the call got:
  - Response set: the server replied with a status ValidateStatus rejected
  - Request set: the request was sent but no usable reply came back; the
    status text is a short category such as "timeout" or "connection refused"
  - Neither set: the request could not be built

# Cookies

One cookie jar is shared by every call made through a transport, and it is
only consulted for requests with WithCredentials set.

# Example Usage

	transport := executor.NewHTTPTransport(executor.WithLogger(log))
	gw := gateway.New(transport, gateway.WithCredentials(store))
	payload, err := gw.Execute(ctx, spec)
*/
package executor

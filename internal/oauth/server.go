package oauth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// CallbackResult contains the OAuth callback response
type CallbackResult struct {
	Code  string // Authorization code
	State string // State parameter for CSRF protection
	Error string // Error if authorization failed
}

// CallbackServer handles OAuth callbacks
type CallbackServer struct {
	server   *http.Server
	listener net.Listener
	result   chan CallbackResult
}

// NewCallbackServer creates a callback server bound to localhost:port.
// Port 0 picks a free port; use Port to read it back.
func NewCallbackServer(port int) (*CallbackServer, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	cs := &CallbackServer{
		listener: ln,
		result:   make(chan CallbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", cs.handleCallback)
	cs.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return cs, nil
}

// Port returns the port the server listens on
func (cs *CallbackServer) Port() int {
	return cs.listener.Addr().(*net.TCPAddr).Port
}

func (cs *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	result := CallbackResult{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Error: query.Get("error"),
	}

	// first callback wins
	select {
	case cs.result <- result:
	default:
	}

	w.Header().Set("Content-Type", "text/html")
	if result.Error != "" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>reqgate login failed</title></head>
<body><h1>Authentication Failed</h1><p>Error: %s</p><p>You can close this window.</p></body>
</html>`, result.Error)
		return
	}
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>reqgate login</title></head>
<body><h1>Authentication Successful</h1><p>You can close this window and return to the terminal.</p>
<script>window.close();</script></body>
</html>`)
}

// Start serves callbacks in the background
func (cs *CallbackServer) Start() {
	go cs.server.Serve(cs.listener)
}

// WaitForCallback waits for the OAuth callback until timeout or ctx ends
func (cs *CallbackServer) WaitForCallback(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-cs.result:
		return &result, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for OAuth callback")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown gracefully shuts down the server
func (cs *CallbackServer) Shutdown(ctx context.Context) error {
	return cs.server.Shutdown(ctx)
}

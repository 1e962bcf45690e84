package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// DefaultLoginPath is used when the auth section names no login path
const DefaultLoginPath = "/api/login"

// Server represents the mock HTTP server
type Server struct {
	config     *Config
	router     *chi.Mux
	httpServer *http.Server
	listener   net.Listener
	logs       []RequestLog
	logsMutex  sync.RWMutex
	workdir    string
	log        zerolog.Logger
	patterns   map[string]*regexp.Regexp
}

// NewServer creates a new mock server
func NewServer(config *Config, workdir string, logger zerolog.Logger) *Server {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Auth != nil && config.Auth.LoginPath == "" {
		config.Auth.LoginPath = DefaultLoginPath
	}

	s := &Server{
		config:   config,
		logs:     make([]RequestLog, 0),
		workdir:  workdir,
		log:      logger,
		patterns: make(map[string]*regexp.Regexp),
	}
	for _, route := range config.Routes {
		if route.PathType == "regex" {
			if re, err := regexp.Compile(route.Path); err == nil {
				s.patterns[route.Path] = re
			}
		}
	}

	s.router = chi.NewRouter()
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(s.requestLogging)
	if config.Auth != nil {
		s.router.Post(config.Auth.LoginPath, s.handleLogin)
	}
	s.router.HandleFunc("/*", s.handleRequest)

	return s
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("mock server error")
		}
	}()

	s.log.Info().Str("address", s.GetAddress()).Int("routes", len(s.config.Routes)).Msg("mock server listening")
	return nil
}

// Stop stops the mock server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("mock request")
	})
}

// handleRequest handles incoming HTTP requests
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	bodyBytes, _ := io.ReadAll(r.Body)
	r.Body.Close()

	route := s.findMatchingRoute(r.Method, r.URL.Path)

	var status int
	var responseBody []byte
	matchedRule := "none"

	switch {
	case route == nil:
		status = http.StatusNotFound
		responseBody = []byte(fmt.Sprintf("Mock server: No route configured for %s %s", r.Method, r.URL.Path))
	case route.Auth && !s.validToken(r.URL.Query().Get("token")):
		status = http.StatusUnauthorized
		responseBody = envelope("401", "invalid or missing token", nil)
		w.Header().Set("Content-Type", "application/json")
		matchedRule = routeName(route)
	default:
		if route.Delay > 0 {
			select {
			case <-time.After(time.Duration(route.Delay) * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}

		status = route.Status
		if status == 0 {
			status = http.StatusOK
		}

		for key, value := range route.Headers {
			w.Header().Set(key, value)
		}

		responseBody, status = s.routeBody(route, status)
		if route.Body == "" && route.BodyFile == "" && w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		matchedRule = routeName(route)
	}

	if s.config.Logging {
		s.logRequest(RequestLog{
			Timestamp:   start,
			RequestID:   chimiddleware.GetReqID(r.Context()),
			Method:      r.Method,
			Path:        r.URL.Path,
			Headers:     flattenHeaders(r.Header),
			Body:        string(bodyBytes),
			MatchedRule: matchedRule,
			Status:      status,
			Duration:    time.Since(start),
		})
	}

	w.WriteHeader(status)
	_, _ = w.Write(responseBody)
}

// routeBody returns the raw body, the file body or the envelope for route
func (s *Server) routeBody(route *Route, status int) ([]byte, int) {
	if route.BodyFile != "" {
		filePath := route.BodyFile
		if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(s.workdir, filePath)
		}
		data, err := os.ReadFile(filePath)
		if err != nil {
			return []byte(fmt.Sprintf("Mock server: Failed to read body file %s: %v", route.BodyFile, err)), http.StatusInternalServerError
		}
		return data, status
	}
	if route.Body != "" {
		return []byte(route.Body), status
	}

	code := route.Code
	if code == nil {
		code = "0"
	}
	return envelope(code, route.Msg, route.Data), status
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin issues an HS256 token in an envelope. Bad credentials are a
// business failure, not an HTTP error.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope("400", "invalid login body", nil))
			return
		}
	} else {
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	auth := s.config.Auth
	if req.Username != auth.Username || req.Password != auth.Password {
		writeJSON(w, http.StatusOK, envelope("401", "invalid credentials", nil))
		return
	}

	token, expiresIn, err := s.issueToken(req.Username)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to sign token")
		writeJSON(w, http.StatusInternalServerError, envelope("500", "failed to sign token", nil))
		return
	}

	writeJSON(w, http.StatusOK, envelope("0", "ok", map[string]any{
		"token":     token,
		"expiresIn": expiresIn,
	}))
}

func (s *Server) issueToken(subject string) (string, int, error) {
	ttl := s.config.Auth.TTL
	if ttl <= 0 {
		ttl = 3600
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "reqgate-mock",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttl) * time.Second)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Auth.Secret))
	return signed, ttl, err
}

func (s *Server) validToken(token string) bool {
	if token == "" || s.config.Auth == nil {
		return false
	}
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return []byte(s.config.Auth.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil
}

// findMatchingRoute finds the first route that matches the method and path
func (s *Server) findMatchingRoute(method, path string) *Route {
	for i := range s.config.Routes {
		route := &s.config.Routes[i]
		if !strings.EqualFold(route.Method, method) {
			continue
		}

		matched := false
		switch route.PathType {
		case "", "exact":
			matched = route.Path == path
		case "prefix":
			matched = strings.HasPrefix(path, route.Path)
		case "regex":
			if re := s.patterns[route.Path]; re != nil {
				matched = re.MatchString(path)
			}
		}

		if matched {
			return route
		}
	}

	return nil
}

// logRequest adds a request to the log
func (s *Server) logRequest(log RequestLog) {
	s.logsMutex.Lock()
	defer s.logsMutex.Unlock()

	s.logs = append(s.logs, log)

	// Keep only last 1000 logs
	if len(s.logs) > 1000 {
		s.logs = s.logs[len(s.logs)-1000:]
	}
}

// GetLogs returns all logged requests
func (s *Server) GetLogs() []RequestLog {
	s.logsMutex.RLock()
	defer s.logsMutex.RUnlock()

	logs := make([]RequestLog, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// GetAddress returns the server address. After Start it reflects the bound
// port.
func (s *Server) GetAddress() string {
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

func routeName(route *Route) string {
	if route.Name != "" {
		return route.Name
	}
	return fmt.Sprintf("%s %s", route.Method, route.Path)
}

func envelope(code any, msg string, data any) []byte {
	body, err := json.Marshal(struct {
		Code any    `json:"code"`
		Msg  string `json:"msg"`
		Data any    `json:"data"`
	}{code, msg, data})
	if err != nil {
		return []byte(`{"code":"500","msg":"failed to encode envelope","data":null}`)
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// flattenHeaders converts http.Header to map[string]string (first value only)
func flattenHeaders(headers http.Header) map[string]string {
	result := make(map[string]string)
	for key, values := range headers {
		if len(values) > 0 {
			result[key] = values[0]
		}
	}
	return result
}

package mock

import "time"

// Config represents the mock server configuration
type Config struct {
	Port    int         `json:"port" yaml:"port"`       // Server port (default: 8080)
	Host    string      `json:"host" yaml:"host"`       // Server host (default: localhost)
	Routes  []Route     `json:"routes" yaml:"routes"`   // Route definitions
	Logging bool        `json:"logging" yaml:"logging"` // Keep a request log
	Auth    *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// AuthConfig enables the login route and token checks on auth routes
type AuthConfig struct {
	Secret    string `json:"secret" yaml:"secret"`
	LoginPath string `json:"loginPath,omitempty" yaml:"loginPath,omitempty"` // default: /api/login
	Username  string `json:"username" yaml:"username"`
	Password  string `json:"password" yaml:"password"`
	TTL       int    `json:"ttl,omitempty" yaml:"ttl,omitempty"` // token lifetime in seconds (default: 3600)
}

// Route represents a mock route configuration. Unless Body or BodyFile is
// set the response is an envelope built from Code, Msg and Data.
type Route struct {
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method      string            `json:"method" yaml:"method"`
	Path        string            `json:"path" yaml:"path"`
	PathType    string            `json:"pathType,omitempty" yaml:"pathType,omitempty"` // exact, prefix, regex (default: exact)
	Status      int               `json:"status,omitempty" yaml:"status,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Code        any               `json:"code,omitempty" yaml:"code,omitempty"` // default: "0"
	Msg         string            `json:"msg,omitempty" yaml:"msg,omitempty"`
	Data        any               `json:"data,omitempty" yaml:"data,omitempty"`
	Body        string            `json:"body,omitempty" yaml:"body,omitempty"`
	BodyFile    string            `json:"bodyFile,omitempty" yaml:"bodyFile,omitempty"`
	Delay       int               `json:"delay,omitempty" yaml:"delay,omitempty"` // milliseconds
	Auth        bool              `json:"auth,omitempty" yaml:"auth,omitempty"`   // require a valid token query parameter
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
}

// RequestLog represents a logged request
type RequestLog struct {
	Timestamp   time.Time         `json:"timestamp"`
	RequestID   string            `json:"requestId"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	MatchedRule string            `json:"matchedRule"`
	Status      int               `json:"status"`
	Duration    time.Duration     `json:"duration"`
}

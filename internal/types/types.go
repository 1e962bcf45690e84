package types

import "time"

// Session represents ephemeral session state
type Session struct {
	Token          string            `json:"token,omitempty"`
	RefreshToken   string            `json:"refreshToken,omitempty"`
	TokenExpiry    *time.Time        `json:"tokenExpiry,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
	ActiveProfile  string            `json:"activeProfile,omitempty"`
	HistoryEnabled *bool             `json:"historyEnabled,omitempty"`
}

// Profile represents a named set of request defaults and variables
type Profile struct {
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables,omitempty"`
	Workdir   string            `json:"workdir,omitempty"`
	OAuth     *OAuthConfig      `json:"oauth,omitempty"`
	Output    string            `json:"output,omitempty"` // json, yaml, text
	Defaults  RequestOverrides  `json:"defaults,omitempty"`
}

// OAuthConfig contains OAuth 2.0 configuration
type OAuthConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	AuthURL      string `json:"authUrl,omitempty" yaml:"authUrl,omitempty" mapstructure:"authUrl"`
	TokenURL     string `json:"tokenUrl,omitempty" yaml:"tokenUrl,omitempty" mapstructure:"tokenUrl"`
	ClientID     string `json:"clientId,omitempty" yaml:"clientId,omitempty" mapstructure:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty" yaml:"clientSecret,omitempty" mapstructure:"clientSecret"`
	RedirectURI  string `json:"redirectUri,omitempty" yaml:"redirectUri,omitempty" mapstructure:"redirectUri"`
	Scope        string `json:"scope,omitempty" yaml:"scope,omitempty" mapstructure:"scope"`
	WebhookPort  int    `json:"webhookPort,omitempty" yaml:"webhookPort,omitempty" mapstructure:"webhookPort"`
}

// TLSConfig configures server verification and client certificates
type TLSConfig struct {
	CertFile           string `json:"certFile,omitempty" yaml:"certFile,omitempty" mapstructure:"certFile"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"keyFile,omitempty" mapstructure:"keyFile"`
	CAFile             string `json:"caFile,omitempty" yaml:"caFile,omitempty" mapstructure:"caFile"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty" mapstructure:"insecureSkipVerify"`
}

// Outcome of a gateway call
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CallRecord is one settled gateway call, as stored in history
type CallRecord struct {
	ID          int64     `json:"id,omitempty"`
	CallID      string    `json:"callId"`
	Timestamp   time.Time `json:"timestamp"`
	ProfileName string    `json:"profile,omitempty"`
	RequestName string    `json:"requestName,omitempty"`
	Method      string    `json:"method"`
	URL         string    `json:"url"` // token value redacted
	Status      int       `json:"status"`
	Code        string    `json:"code,omitempty"`
	Outcome     string    `json:"outcome"`
	ErrorKind   string    `json:"errorKind,omitempty"`
	Message     string    `json:"message,omitempty"`
	Duration    int64     `json:"duration"` // milliseconds
	PayloadSize int       `json:"payloadSize"`
}

// CallStats summarises recorded calls
type CallStats struct {
	Total        int            `json:"total"`
	Successes    int            `json:"successes"`
	Failures     int            `json:"failures"`
	ByKind       map[string]int `json:"byKind,omitempty"`
	AvgDuration  float64        `json:"avgDuration"`
	MaxDuration  int64          `json:"maxDuration"`
	LastCallTime *time.Time     `json:"lastCallTime,omitempty"`
}

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	return NewManagerWithPaths(filepath.Join(dir, ".session.json"), filepath.Join(dir, ".profiles.jsonc"))
}

func TestLoad_Defaults(t *testing.T) {
	m := newTestManager(t)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !m.IsHistoryEnabled() {
		t.Error("history should default to enabled")
	}
	if got := m.GetActiveProfile().Name; got != "Default" {
		t.Errorf("active profile = %q", got)
	}
	if _, ok := m.Get(TokenKey); ok {
		t.Error("expected no token")
	}
}

func TestLoadProfiles_JSONC(t *testing.T) {
	m := newTestManager(t)
	content := `// environments
[
  {
    "name": "dev", // local
    "variables": {"host": "localhost"},
    "defaults": {"baseURL": "http://localhost:8080", "needToken": false},
  },
  {"name": "prod", "variables": {"host": "api.example.com"}},
]`
	if err := os.WriteFile(m.profilesPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if err := m.LoadProfiles(); err != nil {
		t.Fatalf("LoadProfiles() error = %v", err)
	}

	profiles := m.GetProfiles()
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].Defaults.BaseURL != "http://localhost:8080" {
		t.Errorf("defaults not parsed: %+v", profiles[0].Defaults)
	}
	if profiles[0].Defaults.NeedToken == nil || *profiles[0].Defaults.NeedToken {
		t.Errorf("needToken not parsed")
	}
}

func TestLoadProfiles_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"duplicate names", `[{"name":"a"},{"name":"a"}]`},
		{"missing name", `[{"variables":{}}]`},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			os.WriteFile(m.profilesPath, []byte(tt.content), 0644)
			if err := m.LoadProfiles(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGet_Precedence(t *testing.T) {
	m := newTestManager(t)
	os.WriteFile(m.profilesPath, []byte(`[{"name":"dev","variables":{"page":"1","token":"from-profile"}}]`), 0644)
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}

	if v, _ := m.Get("page"); v != "1" {
		t.Errorf("profile variable = %q", v)
	}
	if v, _ := m.Get(TokenKey); v != "from-profile" {
		t.Errorf("token should fall back to profile variable, got %q", v)
	}

	m.SetSessionVariable("page", "2")
	if v, _ := m.Get("page"); v != "2" {
		t.Errorf("session variable should win, got %q", v)
	}

	m.SetToken("stored", "", nil)
	if v, _ := m.Get(TokenKey); v != "stored" {
		t.Errorf("stored token should win, got %q", v)
	}

	vars := m.Variables()
	if vars["page"] != "2" || vars["token"] != "from-profile" {
		t.Errorf("Variables() = %v", vars)
	}
}

func TestSessionPersistence(t *testing.T) {
	m := newTestManager(t)
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := m.SetToken("abc", "refresh", &expiry); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	if err := m.SetHistoryEnabled(false); err != nil {
		t.Fatal(err)
	}

	reloaded := NewManagerWithPaths(m.sessionPath, m.profilesPath)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	s := reloaded.GetSession()
	if s.Token != "abc" || s.RefreshToken != "refresh" {
		t.Errorf("tokens not persisted: %+v", s)
	}
	if s.TokenExpiry == nil || !s.TokenExpiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", s.TokenExpiry, expiry)
	}
	if reloaded.IsHistoryEnabled() {
		t.Error("history flag not persisted")
	}

	info, err := os.Stat(m.sessionPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("session file mode = %v", info.Mode().Perm())
	}

	if err := reloaded.ClearToken(); err != nil {
		t.Fatal(err)
	}
	if _, ok := reloaded.Get(TokenKey); ok {
		t.Error("token should be cleared")
	}
}

func TestSetActiveProfile(t *testing.T) {
	m := newTestManager(t)
	os.WriteFile(m.profilesPath, []byte(`[{"name":"dev"},{"name":"prod","variables":{"v":"p"}}]`), 0644)
	m.Load()
	m.SetToken("dev-token", "", nil)
	m.SetSessionVariable("x", "1")

	if err := m.SetActiveProfile("prod"); err != nil {
		t.Fatalf("SetActiveProfile() error = %v", err)
	}
	if m.GetActiveProfile().Name != "prod" {
		t.Error("profile not switched")
	}
	if _, ok := m.Get(TokenKey); ok {
		t.Error("token should be cleared on switch")
	}
	if _, ok := m.Get("x"); ok {
		t.Error("session variables should be cleared on switch")
	}
	if err := m.SetActiveProfile("missing"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestProfileCRUD(t *testing.T) {
	m := newTestManager(t)
	m.Load()

	if err := m.AddProfile(m.GetActiveProfile()); err == nil {
		t.Error("expected duplicate error")
	}
	newProfile := m.GetActiveProfile()
	newProfile.Name = "staging"
	if err := m.AddProfile(newProfile); err != nil {
		t.Fatalf("AddProfile() error = %v", err)
	}
	if len(m.GetProfiles()) != 2 {
		t.Errorf("expected 2 profiles")
	}
	if err := m.DeleteProfile("staging"); err != nil {
		t.Fatalf("DeleteProfile() error = %v", err)
	}
	if err := m.DeleteProfile("staging"); err == nil {
		t.Error("expected not found error")
	}
}

func TestTokenSource_PersistsRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "r1" {
			t.Errorf("unexpected token request: %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","token_type":"bearer","expires_in":3600,"refresh_token":"r2"}`))
	}))
	defer server.Close()

	m := newTestManager(t)
	expired := time.Now().Add(-time.Minute)
	m.SetToken("stale", "r1", &expired)

	cfg := &oauth2.Config{ClientID: "cli", Endpoint: oauth2.Endpoint{TokenURL: server.URL}}
	if err := m.RefreshIfNeeded(context.Background(), cfg); err != nil {
		t.Fatalf("RefreshIfNeeded() error = %v", err)
	}

	if v, _ := m.Get(TokenKey); v != "fresh" {
		t.Errorf("token = %q, want fresh", v)
	}
	if s := m.GetSession(); s.RefreshToken != "r2" || s.TokenExpiry == nil {
		t.Errorf("refresh token or expiry not saved: %+v", s)
	}
}

func TestRefreshIfNeeded_NoOp(t *testing.T) {
	m := newTestManager(t)
	later := time.Now().Add(time.Hour)
	m.SetToken("valid", "r1", &later)

	// token endpoint would fail if called
	cfg := &oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: "http://127.0.0.1:1/token"}}
	if err := m.RefreshIfNeeded(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected refresh: %v", err)
	}
	if v, _ := m.Get(TokenKey); v != "valid" {
		t.Errorf("token changed: %q", v)
	}
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "user-1",
		"iss":  "reqgate-mock",
		"exp":  exp.Unix(),
		"role": "admin",
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	info, err := InspectToken(signed)
	if err != nil {
		t.Fatalf("InspectToken() error = %v", err)
	}
	if info.Subject != "user-1" || info.Issuer != "reqgate-mock" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.ExpiresAt == nil || !info.ExpiresAt.Equal(exp) || info.Expired {
		t.Errorf("expiry = %v expired=%v", info.ExpiresAt, info.Expired)
	}
	if info.Claims["role"] != "admin" {
		t.Errorf("claims = %v", info.Claims)
	}

	if _, err := InspectToken("opaque-token"); err == nil {
		t.Error("expected error for non-JWT token")
	}
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/studiowebux/reqgate/internal/config"
	"github.com/studiowebux/reqgate/internal/events"
	"github.com/studiowebux/reqgate/internal/executor"
	"github.com/studiowebux/reqgate/internal/gateway"
	"github.com/studiowebux/reqgate/internal/history"
	"github.com/studiowebux/reqgate/internal/mock"
	"github.com/studiowebux/reqgate/internal/session"
	"github.com/studiowebux/reqgate/internal/types"
)

const requestFile = `
- name: items
  url: /api/items
  needToken: false
- name: fail
  url: /api/fail
  needToken: false
- name: private
  url: /api/private
`

type testEnv struct {
	app    *App
	out    *bytes.Buffer
	errOut *bytes.Buffer
	server *httptest.Server
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	if err := config.InitializeAt(dir); err != nil {
		t.Fatalf("InitializeAt() error = %v", err)
	}

	srv := mock.NewServer(&mock.Config{
		Auth: &mock.AuthConfig{Secret: "secret", Username: "admin", Password: "pw"},
		Routes: []mock.Route{
			{Method: "GET", Path: "/api/items", Data: []any{1, 2, 3}},
			{Method: "GET", Path: "/api/fail", Code: "1001", Msg: "bad request"},
			{Method: "GET", Path: "/api/private", Auth: true, Data: "private"},
		},
	}, dir, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	mgr := session.NewManagerWithPaths(filepath.Join(dir, "session.json"), filepath.Join(dir, "profiles.jsonc"))
	if err := mgr.AddProfile(types.Profile{
		Name:      "mock",
		Variables: map[string]string{"base": ts.URL},
		Defaults:  types.RequestOverrides{BaseURL: "{{base}}"},
	}); err != nil {
		t.Fatalf("AddProfile() error = %v", err)
	}

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	app := &App{
		Config:    &config.Config{Output: "json", Concurrency: 2, History: true},
		Session:   mgr,
		Transport: executor.NewHTTPTransport(),
		Bus:       events.NewBus(),
		Log:       zerolog.Nop(),
		Out:       out,
		ErrOut:    errOut,
	}
	if err := app.OpenHistory(filepath.Join(dir, "history.db")); err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	t.Cleanup(func() { app.Close() })

	path := filepath.Join(dir, "items.yaml")
	if err := os.WriteFile(path, []byte(requestFile), 0644); err != nil {
		t.Fatal(err)
	}

	return &testEnv{app: app, out: out, errOut: errOut, server: ts, dir: dir}
}

func (e *testEnv) run(name string, opts CallOptions) error {
	e.out.Reset()
	e.errOut.Reset()
	if opts.Profile == "" {
		opts.Profile = "mock"
	}
	return e.app.Run(context.Background(), RunOptions{
		CallOptions: opts,
		FilePath:    filepath.Join(e.dir, "items"),
		Name:        name,
	})
}

func TestRun_OutputFormats(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		opts CallOptions
		want string
	}{
		{"json", CallOptions{}, "[\n  1,\n  2,\n  3\n]\n"},
		{"yaml", CallOptions{Output: "yaml"}, "- 1\n- 2\n- 3\n"},
		{"filter", CallOptions{Filter: "[1]"}, "2\n"},
		{"query", CallOptions{Query: "length(@)", Output: "text"}, "3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := env.run("items", tt.opts); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if env.out.String() != tt.want {
				t.Errorf("output = %q, want %q", env.out.String(), tt.want)
			}
			if !strings.Contains(env.errOut.String(), types.DefaultSuccessText) {
				t.Errorf("expected success notification, got %q", env.errOut.String())
			}
		})
	}
}

func TestRun_BusinessFailure(t *testing.T) {
	env := newTestEnv(t)

	err := env.run("fail", CallOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "-200：bad request" {
		t.Errorf("error = %q", err.Error())
	}
	if !errors.Is(err, gateway.ErrServer) {
		t.Errorf("expected server error kind, got %v", err)
	}
	if !strings.Contains(env.errOut.String(), "-200：bad request") {
		t.Errorf("expected error notification, got %q", env.errOut.String())
	}
	if env.out.Len() != 0 {
		t.Errorf("unexpected output %q", env.out.String())
	}
}

func TestRun_TokenFlow(t *testing.T) {
	env := newTestEnv(t)

	// no token stored: the gateway sends token=null and the route rejects it
	if err := env.run("private", CallOptions{}); err == nil || err.Error() != "-401：Unauthorized" {
		t.Fatalf("error = %v, want -401：Unauthorized", err)
	}

	login := types.NamedRequest{Name: "login"}
	login.Method = "POST"
	login.URL = mock.DefaultLoginPath
	login.Data = map[string]any{"username": "admin", "password": "pw"}
	noToken := false
	login.NeedToken = &noToken
	env.out.Reset()
	if err := env.app.Call(context.Background(), login, CallOptions{Profile: "mock", Query: "token", Output: "text"}); err != nil {
		t.Fatalf("login Call() error = %v", err)
	}
	token := strings.TrimSpace(env.out.String())
	if err := env.app.TokenSet(token, 0); err != nil {
		t.Fatalf("TokenSet() error = %v", err)
	}

	if err := env.run("private", CallOptions{Output: "text"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if env.out.String() != "private\n" {
		t.Errorf("output = %q", env.out.String())
	}

	env.out.Reset()
	if err := env.app.TokenShow("json"); err != nil {
		t.Fatalf("TokenShow() error = %v", err)
	}
	var shown struct {
		Token string `json:"token"`
		JWT   struct {
			Subject string `json:"subject"`
		} `json:"jwt"`
	}
	if err := json.Unmarshal(env.out.Bytes(), &shown); err != nil {
		t.Fatalf("failed to decode token output: %v", err)
	}
	if shown.Token != token || shown.JWT.Subject != "admin" {
		t.Errorf("TokenShow() = %+v", shown)
	}

	if err := env.app.TokenClear(); err != nil {
		t.Fatal(err)
	}
	if err := env.app.TokenShow("json"); err == nil {
		t.Error("expected error after TokenClear")
	}
}

func TestRun_OverridesAndVariables(t *testing.T) {
	env := newTestEnv(t)

	// -e wins over the profile variable, so the call goes to a closed port
	err := env.run("items", CallOptions{ExtraVars: []string{"base=http://127.0.0.1:1"}})
	if err == nil || !errors.Is(err, gateway.ErrNetwork) {
		t.Fatalf("error = %v, want network error", err)
	}

	// flag overrides beat the request file
	env.out.Reset()
	overrides := types.RequestOverrides{URL: "/api/fail"}
	if err := env.run("items", CallOptions{Overrides: overrides}); err == nil {
		t.Error("expected override URL to hit the failing route")
	}
}

func TestRunBatch(t *testing.T) {
	env := newTestEnv(t)
	env.out.Reset()

	err := env.app.RunBatch(context.Background(), RunOptions{
		CallOptions: CallOptions{Profile: "mock"},
		FilePath:    filepath.Join(env.dir, "items.yaml"),
	})
	if !errors.Is(err, ErrCallsFailed) {
		t.Fatalf("RunBatch() error = %v, want ErrCallsFailed", err)
	}

	var results []BatchResult
	if err := json.Unmarshal(env.out.Bytes(), &results); err != nil {
		t.Fatalf("failed to decode batch output: %v\n%s", err, env.out.String())
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	want := map[string]bool{"items": true, "fail": false, "private": false}
	for _, r := range results {
		if r.OK != want[r.Name] {
			t.Errorf("%s ok = %v, want %v (%s)", r.Name, r.OK, want[r.Name], r.Error)
		}
	}
	var items []int
	if err := json.Unmarshal(results[0].Data, &items); err != nil || results[0].Name != "items" || len(items) != 3 {
		t.Errorf("results keep file order, got %+v", results[0])
	}
	if results[1].Error != "-200：bad request" {
		t.Errorf("fail error = %q", results[1].Error)
	}
}

func TestHistoryRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.run("items", CallOptions{}); err != nil {
		t.Fatal(err)
	}
	_ = env.run("fail", CallOptions{})

	records, err := env.app.History.List(ctx, history.ListOptions{Profile: "mock"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	env.out.Reset()
	if err := env.app.HistoryStats(ctx, "mock", "json"); err != nil {
		t.Fatalf("HistoryStats() error = %v", err)
	}
	var stats types.CallStats
	if err := json.Unmarshal(env.out.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Successes != 1 || stats.ByKind["server"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	env.out.Reset()
	if err := env.app.HistoryList(ctx, history.ListOptions{}, "text"); err != nil {
		t.Fatalf("HistoryList() error = %v", err)
	}
	if !strings.Contains(env.out.String(), "items") || !strings.Contains(env.out.String(), "-200：bad request") {
		t.Errorf("history text = %q", env.out.String())
	}

	if err := env.app.HistoryClear(ctx, ""); err != nil {
		t.Fatal(err)
	}
	records, _ = env.app.History.List(ctx, history.ListOptions{})
	if len(records) != 0 {
		t.Errorf("got %d records after clear", len(records))
	}
}

func TestSaveOutput(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "out.json")

	if err := env.run("items", CallOptions{SavePath: path}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[\n  1,\n  2,\n  3\n]\n" {
		t.Errorf("saved = %q", data)
	}
	if env.out.Len() != 0 {
		t.Error("saved output should not be printed")
	}
}

func TestFormatOutput(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		format  string
		want    string
		wantErr bool
	}{
		{"json object", `{"a":1}`, "json", "{\n  \"a\": 1\n}\n", false},
		{"text string", `"hello"`, "text", "hello\n", false},
		{"text number", `42`, "text", "42\n", false},
		{"yaml", `{"a":"b"}`, "yaml", "a: b\n", false},
		{"empty payload", ``, "json", "null\n", false},
		{"not json", "line one\n", "json", "line one\n", false},
		{"unknown format", `1`, "xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatOutput([]byte(tt.payload), tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("formatOutput() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("formatOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMockInit(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "mock.yaml")

	if err := env.app.MockInit(path); err != nil {
		t.Fatalf("MockInit() error = %v", err)
	}
	if _, err := mock.LoadConfig(path); err != nil {
		t.Errorf("sample config does not load: %v", err)
	}
	if err := env.app.MockInit(path); err == nil {
		t.Error("expected error when file exists")
	}
}

func TestRun_ExtractStoresSessionValues(t *testing.T) {
	env := newTestEnv(t)

	login := `###  login
# @needToken false
# @extract token=token
# @extract ttl=expiresIn
POST /api/login
Content-Type: application/json

{"username": "admin", "password": "pw"}
`
	path := filepath.Join(env.dir, "login.http")
	if err := os.WriteFile(path, []byte(login), 0644); err != nil {
		t.Fatal(err)
	}

	err := env.app.Run(context.Background(), RunOptions{
		CallOptions: CallOptions{Profile: "mock"},
		FilePath:    filepath.Join(env.dir, "login"),
	})
	if err != nil {
		t.Fatalf("login Run() error = %v", err)
	}

	if token, ok := env.app.Session.Get(session.TokenKey); !ok || token == "" {
		t.Fatal("expected token to be stored")
	}
	if ttl, _ := env.app.Session.Get("ttl"); ttl != "3600" {
		t.Errorf("ttl = %q, want 3600", ttl)
	}

	if err := env.run("private", CallOptions{Output: "text"}); err != nil {
		t.Fatalf("private Run() error = %v", err)
	}
	if env.out.String() != "private\n" {
		t.Errorf("output = %q", env.out.String())
	}
}

func TestRunBatch_TUI(t *testing.T) {
	env := newTestEnv(t)
	env.out.Reset()

	err := env.app.RunBatch(context.Background(), RunOptions{
		CallOptions: CallOptions{Profile: "mock", TUI: true},
		FilePath:    filepath.Join(env.dir, "items.yaml"),
	})
	if !errors.Is(err, ErrCallsFailed) {
		t.Fatalf("RunBatch() error = %v, want ErrCallsFailed", err)
	}

	var results []BatchResult
	if err := json.Unmarshal(env.out.Bytes(), &results); err != nil {
		t.Fatalf("failed to decode batch output: %v\n%s", err, env.out.String())
	}
	if len(results) != 3 || !results[0].OK || results[1].OK {
		t.Errorf("results = %+v", results)
	}
}

func TestRun_InvalidFilterSkipsCall(t *testing.T) {
	env := newTestEnv(t)

	if err := env.run("items", CallOptions{Filter: "items["}); err == nil {
		t.Fatal("expected error for invalid filter")
	}
	records, err := env.app.History.List(context.Background(), history.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("got %d recorded calls, want none", len(records))
	}
}

func TestHistoryDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.run("items", CallOptions{}); err != nil {
		t.Fatal(err)
	}
	records, err := env.app.History.List(ctx, history.ListOptions{})
	if err != nil || len(records) != 1 {
		t.Fatalf("List() = %d records, %v", len(records), err)
	}

	if err := env.app.HistoryDelete(ctx, records[0].ID); err != nil {
		t.Fatalf("HistoryDelete() error = %v", err)
	}
	if err := env.app.HistoryDelete(ctx, records[0].ID); err == nil {
		t.Error("expected error for a missing entry")
	}
	if records, _ = env.app.History.List(ctx, history.ListOptions{}); len(records) != 0 {
		t.Errorf("got %d records after delete", len(records))
	}
}

func TestMock_PrintsRequestLogOnShutdown(t *testing.T) {
	env := newTestEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	path := filepath.Join(env.dir, "mock.yaml")
	cfg := "host: 127.0.0.1\nlogging: true\nroutes:\n  - method: GET\n    path: /api/ping\n    data: pong\n"
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.app.Mock(ctx, path, port) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/ping", port)
	var resp *http.Response
	for range 100 {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("mock server never answered: %v", err)
	}
	resp.Body.Close()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Mock() error = %v", err)
	}

	out := env.errOut.String()
	if !strings.Contains(out, "Served 1 requests") || !strings.Contains(out, "/api/ping") {
		t.Errorf("request log = %q", out)
	}
}

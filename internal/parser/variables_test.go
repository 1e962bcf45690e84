package parser

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/studiowebux/reqgate/internal/types"
)

func TestResolvePriority(t *testing.T) {
	vr := NewVariableResolver(
		map[string]string{"host": "profile", "only_profile": "p"},
		map[string]string{"host": "session", "only_session": "s"},
		map[string]string{"host": "cli"},
		map[string]string{"HOME_DIR": "/home/x"},
	)

	tests := []struct {
		input string
		want  string
	}{
		{"{{host}}", "cli"},
		{"{{only_session}}", "s"},
		{"{{only_profile}}", "p"},
		{"{{ host }}", "cli"},
		{"{{env.HOME_DIR}}", "/home/x"},
		{"{{missing}}", "{{missing}}"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := vr.Resolve(tt.input)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	if got := vr.GetUnresolvedVariables(); !reflect.DeepEqual(got, []string{"missing"}) {
		t.Errorf("GetUnresolvedVariables() = %v", got)
	}
}

func TestResolveShellCommand(t *testing.T) {
	vr := NewVariableResolver(map[string]string{"cmd": "$(echo nested)"}, nil, nil, nil)

	got, err := vr.Resolve("$(echo hello)-{{cmd}}")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "hello-nested" {
		t.Errorf("Resolve() = %q, want hello-nested", got)
	}

	if _, err := vr.Resolve("$(exit 3)"); err == nil {
		t.Error("expected error for failing command")
	}
	if len(vr.GetShellErrors()) != 1 {
		t.Errorf("GetShellErrors() = %v", vr.GetShellErrors())
	}
}

func TestResolveRequest(t *testing.T) {
	vr := NewVariableResolver(map[string]string{
		"base": "http://localhost:8080",
		"id":   "42",
		"user": "admin",
		"name": "widget",
	}, nil, nil, nil)

	req := types.NamedRequest{Name: "get"}
	req.BaseURL = "{{base}}"
	req.URL = "/api/items/{{id}}"
	req.Params = map[string]string{"owner": "{{user}}"}
	req.Headers = map[string]string{"X-User": "{{user}}"}
	req.Auth = &types.BasicAuth{Username: "{{user}}", Password: "secret"}
	req.Data = map[string]any{
		"name":  "{{name}}",
		"count": 3.0,
		"tags":  []any{"{{id}}", true},
	}

	resolved, err := vr.ResolveRequest(req)
	if err != nil {
		t.Fatalf("ResolveRequest() error = %v", err)
	}

	if resolved.BaseURL != "http://localhost:8080" || resolved.URL != "/api/items/42" {
		t.Errorf("urls = %q %q", resolved.BaseURL, resolved.URL)
	}
	if resolved.Params["owner"] != "admin" || resolved.Headers["X-User"] != "admin" {
		t.Errorf("params = %v headers = %v", resolved.Params, resolved.Headers)
	}
	if resolved.Auth.Username != "admin" {
		t.Errorf("auth = %+v", resolved.Auth)
	}
	want := map[string]any{"name": "widget", "count": 3.0, "tags": []any{"42", true}}
	if !reflect.DeepEqual(resolved.Data, want) {
		t.Errorf("Data = %#v, want %#v", resolved.Data, want)
	}

	// original untouched
	if req.Auth.Username != "{{user}}" || req.Data.(map[string]any)["name"] != "{{name}}" {
		t.Error("ResolveRequest modified its input")
	}
}

func TestExtractRequestVariables(t *testing.T) {
	req := types.NamedRequest{}
	req.URL = "{{base}}/items/{{id}}"
	req.Headers = map[string]string{"X": "{{id}}"}
	req.Data = map[string]any{"a": []any{"{{name}}"}}

	got := ExtractRequestVariables(req)
	sort.Strings(got)
	want := []string{"base", "id", "name"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractRequestVariables() = %v, want %v", got, want)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nAPI_KEY=abc\nQUOTED=\"hello world\"\nSINGLE='x'\nmalformed\n\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	env, err := LoadEnvFile(path)
	if err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	want := map[string]string{"API_KEY": "abc", "QUOTED": "hello world", "SINGLE": "x"}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("LoadEnvFile() = %v, want %v", env, want)
	}

	if _, err := LoadEnvFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

package parser

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestParseHTTPFile(t *testing.T) {
	path := writeFile(t, "items.http", `### list items
# Lists every item
# @timeout 500
# @needToken false
# @filter data[0]
# @param page=2
GET {{baseUrl}}/api/items
Accept: application/json

### create item
# @description Create one item
# @showSuccess false
# @tls.insecureSkipVerify true
POST /api/items
X-Trace: abc

{"name": "{{itemName}}", "tags": ["a"]}

### raw body
PUT /api/raw

hello
world
`)

	requests, err := ParseHTTPFile(path)
	if err != nil {
		t.Fatalf("ParseHTTPFile() error = %v", err)
	}
	if len(requests) != 3 {
		t.Fatalf("got %d requests, want 3", len(requests))
	}

	list := requests[0]
	if list.Name != "list items" || list.Method != "GET" || list.URL != "{{baseUrl}}/api/items" {
		t.Errorf("unexpected request line: %+v", list)
	}
	if list.Description != "Lists every item" {
		t.Errorf("Description = %q", list.Description)
	}
	if list.TimeoutMs == nil || *list.TimeoutMs != 500 {
		t.Errorf("TimeoutMs = %v, want 500", list.TimeoutMs)
	}
	if list.NeedToken == nil || *list.NeedToken {
		t.Errorf("NeedToken = %v, want false", list.NeedToken)
	}
	if list.Filter != "data[0]" {
		t.Errorf("Filter = %q", list.Filter)
	}
	if list.Params["page"] != "2" {
		t.Errorf("Params = %v", list.Params)
	}
	if list.Headers["Accept"] != "application/json" {
		t.Errorf("Headers = %v", list.Headers)
	}
	if list.Data != nil {
		t.Errorf("Data = %v, want nil", list.Data)
	}

	create := requests[1]
	if create.Description != "Create one item" {
		t.Errorf("Description = %q", create.Description)
	}
	if create.ShowSuccess == nil || *create.ShowSuccess {
		t.Errorf("ShowSuccess = %v, want false", create.ShowSuccess)
	}
	if create.TLS == nil || !create.TLS.InsecureSkipVerify {
		t.Errorf("TLS = %+v", create.TLS)
	}
	if create.Headers["Content-Type"] != "application/json" {
		t.Errorf("json body should set Content-Type, headers = %v", create.Headers)
	}
	want := map[string]any{"name": "{{itemName}}", "tags": []any{"a"}}
	if !reflect.DeepEqual(create.Data, want) {
		t.Errorf("Data = %#v, want %#v", create.Data, want)
	}

	raw := requests[2]
	if raw.Data != "hello\nworld" {
		t.Errorf("Data = %q", raw.Data)
	}
	if _, ok := raw.Headers["Content-Type"]; ok {
		t.Error("text body should not set Content-Type")
	}
}

func TestParseHTTPFileInvalidAnnotation(t *testing.T) {
	path := writeFile(t, "bad.http", "### bad\n# @timeout soon\nGET /x\n")
	if _, err := ParseHTTPFile(path); err == nil {
		t.Fatal("expected error for invalid @timeout")
	}
}

func TestParseYAML(t *testing.T) {
	path := writeFile(t, "items.yaml", `
- name: list
  url: /api/items
  timeout: 1000
  params:
    page: "1"
- name: create
  method: POST
  url: /api/items
  data:
    name: widget
  showLoading: false
`)

	requests, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(requests))
	}
	if requests[0].TimeoutMs == nil || *requests[0].TimeoutMs != 1000 {
		t.Errorf("TimeoutMs = %v", requests[0].TimeoutMs)
	}
	if requests[0].Params["page"] != "1" {
		t.Errorf("Params = %v", requests[0].Params)
	}
	if requests[1].Method != "POST" {
		t.Errorf("Method = %q", requests[1].Method)
	}
	if requests[1].ShowLoading == nil || *requests[1].ShowLoading {
		t.Errorf("ShowLoading = %v", requests[1].ShowLoading)
	}
	data, ok := requests[1].Data.(map[string]any)
	if !ok || data["name"] != "widget" {
		t.Errorf("Data = %#v", requests[1].Data)
	}
}

func TestParseSingleYAMLEntry(t *testing.T) {
	path := writeFile(t, "one.yml", "url: /api/one\n")

	requests, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(requests) != 1 || requests[0].URL != "/api/one" {
		t.Fatalf("requests = %+v", requests)
	}
	if requests[0].Name != "request-1" {
		t.Errorf("Name = %q, want request-1", requests[0].Name)
	}
}

func TestParseJSONC(t *testing.T) {
	path := writeFile(t, "items.jsonc", `[
  // list items
  {"name": "list", "url": "/api/items", "needToken": false,},
]`)

	requests, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(requests) != 1 || requests[0].Name != "list" {
		t.Fatalf("requests = %+v", requests)
	}
	if requests[0].NeedToken == nil || *requests[0].NeedToken {
		t.Errorf("NeedToken = %v", requests[0].NeedToken)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported extension", "items.txt", "GET /x"},
		{"missing url", "items.yaml", "- name: nourl\n"},
		{"empty http file", "empty.http", "\n"},
		{"invalid json", "bad.json", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			if _, err := Parse(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFind(t *testing.T) {
	path := writeFile(t, "items.yaml", "- name: a\n  url: /a\n- name: b\n  url: /b\n")
	requests, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	first, err := Find(requests, "")
	if err != nil || first.Name != "a" {
		t.Errorf("Find(\"\") = %v, %v", first.Name, err)
	}
	b, err := Find(requests, "b")
	if err != nil || b.URL != "/b" {
		t.Errorf("Find(b) = %v, %v", b.URL, err)
	}
	if _, err := Find(requests, "c"); err == nil {
		t.Error("expected error for unknown request")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		file    string
		content string
		want    string
	}{
		{"a.yaml", "", "yaml"},
		{"a.YML", "", "yaml"},
		{"a.json", "", "json"},
		{"a.jsonc", "", "json"},
		{"a.http", "### x\nGET /x\n", "http"},
		{"b.http", `[{"url": "/x"}]`, "json"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			got, err := DetectFormat(path)
			if err != nil {
				t.Fatalf("DetectFormat() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

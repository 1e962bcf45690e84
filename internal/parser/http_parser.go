package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/studiowebux/reqgate/internal/types"
)

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// ParseHTTPFile parses a traditional .http file with ### separators
func ParseHTTPFile(filePath string) ([]types.NamedRequest, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var requests []types.NamedRequest
	var current *types.NamedRequest
	var bodyLines []string
	inBody := false

	flush := func() {
		if current == nil {
			return
		}
		if inBody && len(bodyLines) > 0 {
			setBody(current, strings.Join(bodyLines, "\n"))
		}
		requests = append(requests, *current)
	}

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		line := scanner.Text()
		lineNum++

		// New request separator
		if strings.HasPrefix(line, "###") {
			flush()
			current = &types.NamedRequest{
				Name: strings.TrimSpace(strings.TrimPrefix(line, "###")),
			}
			bodyLines = nil
			inBody = false
			continue
		}

		// Annotations
		if strings.HasPrefix(line, "#") && current != nil && !inBody {
			trimmed := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			if err := applyAnnotation(current, trimmed); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			continue
		}

		// HTTP method and URL (e.g., GET http://example.com)
		if current != nil && current.Method == "" {
			parts := strings.Fields(line)
			if len(parts) >= 2 && validMethods[strings.ToUpper(parts[0])] {
				current.Method = strings.ToUpper(parts[0])
				current.URL = parts[1]
			}
			continue
		}

		// Empty line after headers starts body
		if current != nil && strings.TrimSpace(line) == "" && !inBody {
			inBody = true
			continue
		}

		// Headers (Key: Value) - only parse as header if not in body
		if current != nil && !inBody && strings.Contains(line, ":") {
			// Indented lines are body content
			if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
				inBody = true
				bodyLines = append(bodyLines, line)
				continue
			}

			key, value, _ := strings.Cut(line, ":")
			key = strings.TrimSpace(key)
			if key == "" || strings.ContainsAny(key, " \t{[\"'") {
				inBody = true
				bodyLines = append(bodyLines, line)
				continue
			}

			if current.Headers == nil {
				current.Headers = make(map[string]string)
			}
			types.SetHeader(current.Headers, key, strings.TrimSpace(value))
			continue
		}

		if current != nil && (inBody || strings.TrimSpace(line) != "") {
			inBody = true
			bodyLines = append(bodyLines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	flush()
	return requests, nil
}

// setBody stores a JSON body as structured data so it survives variable
// resolution and re-encoding. Other bodies are kept as text.
func setBody(req *types.NamedRequest, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}

	var data any
	if err := json.Unmarshal([]byte(body), &data); err == nil {
		switch data.(type) {
		case map[string]any, []any:
			req.Data = data
			if !hasHeader(req.Headers, "Content-Type") {
				if req.Headers == nil {
					req.Headers = make(map[string]string)
				}
				req.Headers["Content-Type"] = "application/json"
			}
			return
		}
	}
	req.Data = body
}

func hasHeader(h map[string]string, key string) bool {
	for k := range h {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// applyAnnotation handles "# @name value" lines. Unknown annotations and
// plain comments are ignored; a leading plain comment becomes the
// description.
func applyAnnotation(req *types.NamedRequest, line string) error {
	if !strings.HasPrefix(line, "@") {
		if req.Description == "" {
			req.Description = line
		}
		return nil
	}

	name, value, _ := strings.Cut(line[1:], " ")
	value = strings.TrimSpace(value)

	switch name {
	case "description":
		req.Description = value
	case "filter":
		req.Filter = value
	case "query":
		req.Query = value
	case "baseURL":
		req.BaseURL = value
	case "responseType":
		req.ResponseType = value
	case "responseEncoding":
		req.ResponseEncoding = value
	case "needToken":
		return setBoolAnnotation(&req.NeedToken, name, value)
	case "withCredentials":
		return setBoolAnnotation(&req.WithCredentials, name, value)
	case "showLoading":
		return setBoolAnnotation(&req.ShowLoading, name, value)
	case "hideLoading":
		return setBoolAnnotation(&req.HideLoading, name, value)
	case "showSuccess":
		return setBoolAnnotation(&req.ShowSuccess, name, value)
	case "showError":
		return setBoolAnnotation(&req.ShowError, name, value)
	case "loadingText":
		req.LoadingText = &value
	case "successText":
		req.SuccessText = &value
	case "errorText":
		req.ErrorText = &value
	case "timeout":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid @timeout %q", value)
		}
		req.TimeoutMs = &ms
	case "maxContentLength":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid @maxContentLength %q", value)
		}
		req.MaxContentLength = &n
	case "param":
		key, v, ok := strings.Cut(value, "=")
		if !ok {
			return fmt.Errorf("invalid @param %q, expected key=value", value)
		}
		if req.Params == nil {
			req.Params = make(map[string]string)
		}
		req.Params[strings.TrimSpace(key)] = strings.TrimSpace(v)
	case "extract":
		key, v, ok := strings.Cut(value, "=")
		if !ok {
			return fmt.Errorf("invalid @extract %q, expected name=expression", value)
		}
		if req.Extract == nil {
			req.Extract = make(map[string]string)
		}
		req.Extract[strings.TrimSpace(key)] = strings.TrimSpace(v)
	case "tls.certFile", "tls.keyFile", "tls.caFile", "tls.insecureSkipVerify":
		if req.TLS == nil {
			req.TLS = &types.TLSConfig{}
		}
		switch name {
		case "tls.certFile":
			req.TLS.CertFile = value
		case "tls.keyFile":
			req.TLS.KeyFile = value
		case "tls.caFile":
			req.TLS.CAFile = value
		default:
			req.TLS.InsecureSkipVerify = value == "true"
		}
	}
	return nil
}

func setBoolAnnotation(dst **bool, name, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid @%s %q", name, value)
	}
	*dst = &b
	return nil
}

package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/studiowebux/reqgate/internal/types"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"
)

// encodeBody serialises data for the wire. Raw bodies (bytes, strings,
// readers) are sent as is. Objects are form-encoded when the content type
// asks for it and JSON-encoded otherwise. size is -1 when unknown.
func encodeBody(data any, headers http.Header) (io.Reader, int64, error) {
	switch v := data.(type) {
	case nil:
		return nil, 0, nil
	case []byte:
		return bytes.NewReader(v), int64(len(v)), nil
	case string:
		return strings.NewReader(v), int64(len(v)), nil
	case json.RawMessage:
		setDefaultContentType(headers, contentTypeJSON)
		return bytes.NewReader(v), int64(len(v)), nil
	case url.Values:
		encoded := v.Encode()
		setDefaultContentType(headers, contentTypeForm)
		return strings.NewReader(encoded), int64(len(encoded)), nil
	case io.Reader:
		return v, -1, nil
	}

	if isForm(headers) {
		values, err := toFormValues(data)
		if err != nil {
			return nil, 0, err
		}
		if values != nil {
			encoded := values.Encode()
			return strings.NewReader(encoded), int64(len(encoded)), nil
		}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal JSON body: %w", err)
	}
	if isForm(headers) {
		headers.Set("Content-Type", contentTypeJSON)
	}
	setDefaultContentType(headers, contentTypeJSON)
	return bytes.NewReader(encoded), int64(len(encoded)), nil
}

func isForm(headers http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(headers.Get("Content-Type"))
	return err == nil && mediaType == contentTypeForm
}

func setDefaultContentType(headers http.Header, contentType string) {
	if headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", contentType)
	}
}

// toFormValues flattens an object into form values. Nested objects use
// bracket keys (a[b]=c), arrays repeat the key with brackets (a[]=1&a[]=2).
// It returns nil values when data is not an object.
func toFormValues(data any) (url.Values, error) {
	var obj map[string]any
	switch v := data.(type) {
	case map[string]string:
		values := make(url.Values, len(v))
		for key, value := range v {
			values.Set(key, value)
		}
		return values, nil
	case map[string]any:
		obj = v
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal form body: %w", err)
		}
		if err := json.Unmarshal(encoded, &obj); err != nil {
			// not an object; caller falls back to JSON
			return nil, nil
		}
	}

	values := url.Values{}
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		addFormValue(values, key, obj[key])
	}
	return values, nil
}

func addFormValue(values url.Values, key string, value any) {
	switch v := value.(type) {
	case nil:
	case map[string]any:
		for k, inner := range v {
			addFormValue(values, key+"["+k+"]", inner)
		}
	case []any:
		for _, inner := range v {
			addFormValue(values, key+"[]", inner)
		}
	case string:
		values.Add(key, v)
	default:
		values.Add(key, fmt.Sprint(v))
	}
}

// progressReader reports bytes read so far to fn
type progressReader struct {
	r      io.Reader
	loaded int64
	total  int64
	fn     func(types.ProgressEvent)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.fn(types.ProgressEvent{Loaded: p.loaded, Total: p.total})
	}
	return n, err
}

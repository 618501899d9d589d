// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing HTTP request data: bodies that
// arrive either as forms (htmx) or JSON (scripts), chart size parameters and
// response format negotiation.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bilancio/internal/chart"
)

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(r.Body)
	}
	return p
}

// Parse parses the body as JSON when the request declared a JSON content
// type, as a form otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if isJSONContentType(p.contentType) {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = fmt.Errorf("decode json body: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a value from the parsed data with surrounding whitespace
// removed. Inner content is left untouched.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(p.formData.Get(key))
	}
	return ""
}

// Values returns the parsed data flattened to url.Values. JSON scalars are
// converted to their string form; nested values are skipped.
func (p *RequestBodyParser) Values() url.Values {
	if p.jsonData == nil {
		if p.formData == nil {
			return url.Values{}
		}
		return p.formData
	}
	out := make(url.Values, len(p.jsonData))
	for k, v := range p.jsonData {
		if s := stringValue(v); s != "" {
			out.Set(k, s)
		}
	}
	return out
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// isJSONContentType accepts application/json and +json suffixed types.
func isJSONContentType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseChartSize reads optional width and height parameters, falling back
// to def for missing ones. The result is range checked.
func ParseChartSize(query url.Values, def chart.Size) (chart.Size, error) {
	size := def
	for _, p := range []struct {
		key string
		dst *int
	}{{"width", &size.Width}, {"height", &size.Height}} {
		v := strings.TrimSpace(query.Get(p.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return chart.Size{}, fmt.Errorf("invalid %s %q", p.key, v)
		}
		*p.dst = n
	}
	if err := size.Validate(); err != nil {
		return chart.Size{}, err
	}
	return size, nil
}

// WantsJSON reports whether the client asked for a JSON response.
func WantsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "application/json" {
			return true
		}
	}
	return false
}

// IsDownload reports whether the query asks for the attachment form.
func IsDownload(query url.Values) bool {
	switch strings.ToLower(strings.TrimSpace(query.Get("download"))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Request describes one call to the Fieldwire API.
type Request struct {
	// Method defaults to GET.
	Method string

	// Target is an absolute URL or a path relative to Config.BaseURL.
	Target string

	Header http.Header
	Query  url.Values

	// Body is sent as JSON; []byte and json.RawMessage are sent unchanged.
	Body any
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

func (r Request) encodeBody() ([]byte, error) {
	switch b := r.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		return data, nil
	}
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte

	// RequestID is the X-Request-ID sent with the final attempt.
	RequestID string

	// FromCache is true when the body was served from the response cache.
	FromCache bool
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func (r *Response) snippet() string {
	const max = 512
	body := bytes.TrimSpace(r.Body)
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// ValidateResponse reports whether resp has one of the expected statuses
// (default 200, 201).
func ValidateResponse(resp *Response, expected ...int) bool {
	if resp == nil {
		return false
	}
	if len(expected) == 0 {
		expected = DefaultExpected
	}
	return slices.Contains(expected, resp.StatusCode)
}

// ExpectStatus is ValidateResponse for callers that want an error value.
func ExpectStatus(resp *Response, expected ...int) error {
	if ValidateResponse(resp, expected...) {
		return nil
	}
	if resp == nil {
		return &RequestError{Class: ErrorClassUnexpected, Message: "no response"}
	}
	return &RequestError{
		StatusCode: resp.StatusCode,
		Class:      classifyStatus(resp.StatusCode),
		Message:    resp.snippet(),
	}
}

// resolve joins the target with the base URL and merges query parameters.
func (c *Client) resolve(req Request) (*url.URL, error) {
	raw := req.Target
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(raw, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &RequestError{Method: req.method(), Target: raw, Class: ErrorClassUnexpected, Err: fmt.Errorf("parse target: %w", err)}
	}

	if len(req.Query) > 0 {
		q := u.Query()
		for key, values := range req.Query {
			q.Del(key)
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

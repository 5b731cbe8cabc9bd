package pagination

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// Descriptor identifies a paginated list request. Treat it as immutable and
// Clone it before changing headers or query parameters.
type Descriptor struct {
	// Target is a path relative to the gateway base URL, or an absolute URL.
	Target  string
	Headers http.Header
	Query   url.Values
}

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	c := Descriptor{Target: d.Target, Headers: d.Headers.Clone()}
	if d.Query != nil {
		c.Query = make(url.Values, len(d.Query))
		for k, v := range d.Query {
			c.Query[k] = append([]string(nil), v...)
		}
	}
	return c
}

// Page is one response of a paginated list.
type Page struct {
	Items   []json.RawMessage
	Cursor  string
	HasMore bool
}

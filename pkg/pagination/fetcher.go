package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/client"
)

// Fieldwire pagination headers and parameters.
const (
	PerPageHeader    = "Fieldwire-Per-Page"
	HasMoreHeader    = "X-Has-More"
	LastSyncedHeader = "X-Last-Synced-At"
	CursorParam      = "last_synced_at"
)

// Gateway performs a request. *client.Client implements it.
type Gateway interface {
	Execute(ctx context.Context, req client.Request, expected ...int) (*client.Response, error)
}

// HTTPFetcher fetches Fieldwire list pages through the request gateway.
type HTTPFetcher struct {
	gateway  Gateway
	pageSize int
}

// NewHTTPFetcher creates a fetcher that asks for pageSize items per page.
func NewHTTPFetcher(gateway Gateway, pageSize int) *HTTPFetcher {
	if pageSize <= 0 {
		pageSize = DefaultConfig().PageSize
	}
	return &HTTPFetcher{gateway: gateway, pageSize: pageSize}
}

// FetchPage fetches one page. A 404 or an empty array is the final page.
func (f *HTTPFetcher) FetchPage(ctx context.Context, desc Descriptor, cursor string) (Page, error) {
	desc = desc.Clone()
	if desc.Headers == nil {
		desc.Headers = http.Header{}
	}
	desc.Headers.Set(PerPageHeader, strconv.Itoa(f.pageSize))
	if cursor != "" {
		if desc.Query == nil {
			desc.Query = map[string][]string{}
		}
		desc.Query.Set(CursorParam, cursor)
	}

	resp, err := f.gateway.Execute(ctx, client.Request{
		Method: http.MethodGet,
		Target: desc.Target,
		Header: desc.Headers,
		Query:  desc.Query,
	}, http.StatusOK, http.StatusNotFound)
	if err != nil {
		return Page{}, err
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return Page{}, nil
	case http.StatusOK:
	default:
		return Page{}, client.ExpectStatus(resp, http.StatusOK, http.StatusNotFound)
	}

	var items []json.RawMessage
	if body := bytes.TrimSpace(resp.Body); len(body) > 0 {
		if err := json.Unmarshal(body, &items); err != nil {
			return Page{}, &PaginationError{Target: desc.Target, Reason: ReasonDecodeFailed, Err: fmt.Errorf("decode page: %w", err)}
		}
	}
	if len(items) == 0 {
		return Page{}, nil
	}

	return Page{
		Items:   items,
		Cursor:  resp.Header.Get(LastSyncedHeader),
		HasMore: resp.Header.Get(HasMoreHeader) == "true",
	}, nil
}

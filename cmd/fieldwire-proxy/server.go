package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/metrics"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/pagination"
	goerrors "github.com/goliatone/go-errors"
	"github.com/rs/zerolog"
)

// maxBatchRequests bounds the lists fetched by one POST /batch.
const maxBatchRequests = 50

// requestTimeout bounds a single proxy request.
const requestTimeout = 5 * time.Minute

var (
	segmentPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	resourcePattern = regexp.MustCompile(`^[a-z_]+$`)
)

// serviceError is implemented by every typed error of the client packages.
type serviceError interface {
	ToServiceError() *goerrors.Error
}

// listRequest names one project list.
type listRequest struct {
	Project  string `json:"project"`
	Resource string `json:"resource"`
	Filter   string `json:"filter,omitempty"`
}

type batchRequest struct {
	Requests []listRequest `json:"requests"`
}

type batchItem struct {
	Project  string            `json:"project"`
	Resource string            `json:"resource"`
	Count    int               `json:"count"`
	Items    []json.RawMessage `json:"items,omitempty"`
	Error    *errorBody        `json:"error,omitempty"`
}

type batchResponse struct {
	AllSucceeded bool        `json:"all_succeeded"`
	Results      []batchItem `json:"results"`
}

type errorBody struct {
	Category string         `json:"category"`
	Code     int            `json:"code"`
	TextCode string         `json:"text_code,omitempty"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// newRouter registers the proxy routes.
func newRouter(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /projects/{project}/{resource}", a.listHandler)
	mux.HandleFunc("POST /batch", a.batchHandler)
	return mux
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":      "ok",
		"token_state": a.tokens.State().String(),
	}
	if exp := a.tokens.ExpiresAt(); !exp.IsZero() {
		body["token_expires_at"] = exp.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *app) listHandler(w http.ResponseWriter, r *http.Request) {
	req := listRequest{
		Project:  r.PathValue("project"),
		Resource: r.PathValue("resource"),
		Filter:   r.URL.Query().Get("filter"),
	}
	desc, err := req.descriptor()
	if err != nil {
		a.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	items, err := a.aggregator.FetchAll(ctx, desc, a.fetcher)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if items == nil {
		items = []json.RawMessage{}
	}

	w.Header().Set("X-Total-Count", fmt.Sprint(len(items)))
	writeJSON(w, http.StatusOK, items)
}

func (a *app) batchHandler(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		a.writeError(w, badRequest(fmt.Sprintf("invalid batch body: %v", err)))
		return
	}
	if len(body.Requests) == 0 {
		a.writeError(w, badRequest("batch requires at least one request"))
		return
	}
	if len(body.Requests) > maxBatchRequests {
		a.writeError(w, badRequest(fmt.Sprintf("batch accepts at most %d requests", maxBatchRequests)))
		return
	}

	descs := make([]pagination.Descriptor, len(body.Requests))
	for i, req := range body.Requests {
		desc, err := req.descriptor()
		if err != nil {
			a.writeError(w, err)
			return
		}
		descs[i] = desc
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result := a.batch.FetchMany(ctx, descs)

	resp := batchResponse{AllSucceeded: result.AllSucceeded, Results: make([]batchItem, result.Len())}
	for i, outcome := range result.Outcomes {
		item := batchItem{Project: body.Requests[i].Project, Resource: body.Requests[i].Resource}
		if outcome.Err != nil {
			item.Error = toErrorBody(outcome.Err)
		} else {
			item.Items = outcome.Value
			item.Count = len(outcome.Value)
		}
		resp.Results[i] = item
	}
	writeJSON(w, http.StatusOK, resp)
}

// descriptor validates the request and builds the list descriptor.
func (l listRequest) descriptor() (pagination.Descriptor, error) {
	if !segmentPattern.MatchString(l.Project) {
		return pagination.Descriptor{}, badRequest(fmt.Sprintf("invalid project id %q", l.Project))
	}
	if !resourcePattern.MatchString(l.Resource) {
		return pagination.Descriptor{}, badRequest(fmt.Sprintf("invalid resource %q", l.Resource))
	}

	desc := pagination.Descriptor{Target: "/projects/" + l.Project + "/" + l.Resource}
	if l.Filter != "" {
		desc.Headers = http.Header{"Fieldwire-Filter": {l.Filter}}
	}
	return desc, nil
}

func badRequest(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode("BAD_REQUEST")
}

// toErrorBody maps err onto its service error envelope.
func toErrorBody(err error) *errorBody {
	var svc *goerrors.Error
	var mapper serviceError
	switch {
	case errors.As(err, &svc):
	case errors.As(err, &mapper):
		svc = mapper.ToServiceError()
	default:
		svc = goerrors.Wrap(err, goerrors.CategoryInternal, "internal error").
			WithCode(http.StatusInternalServerError).
			WithTextCode("INTERNAL")
	}

	code := svc.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	return &errorBody{
		Category: fmt.Sprint(svc.Category),
		Code:     code,
		TextCode: svc.TextCode,
		Message:  err.Error(),
		Metadata: svc.Metadata,
	}
}

func (a *app) writeError(w http.ResponseWriter, err error) {
	body := toErrorBody(err)
	level := zerolog.WarnLevel
	if body.Code >= http.StatusInternalServerError {
		level = zerolog.ErrorLevel
	}
	a.logger.WithLevel(level).
		Err(err).
		Int("status", body.Code).
		Str("text_code", body.TextCode).
		Msg("Request failed")
	writeJSON(w, body.Code, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

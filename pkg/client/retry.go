package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/auth"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var authRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fieldwire_auth_retries_total",
	Help: "Total requests retried after the access token was rejected",
})

// maxResponseBody bounds how much of a response body is read. Larger
// bodies fail with ErrResponseTooLarge.
var maxResponseBody int64 = 64 << 20

// doWithAuthRetry sends the request and, when the token is rejected,
// refreshes it once and sends the request once more. There is no other retry.
func (c *Client) doWithAuthRetry(ctx context.Context, method string, target *url.URL, header http.Header, body []byte) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		errorsTotal.WithLabelValues("auth").Inc()
		return nil, err
	}

	resp, rejected, err := c.send(ctx, method, target, header, body, token, 1)
	if err != nil || !rejected {
		return resp, err
	}

	authRetriesTotal.Inc()
	c.logger.Warn().
		Str("method", method).
		Str("target", target.String()).
		Msg("Access token rejected, refreshing and retrying once")

	token, err = c.tokens.ForceRefresh(ctx, token)
	if err != nil {
		errorsTotal.WithLabelValues("auth").Inc()
		return nil, err
	}

	resp, rejected, err = c.send(ctx, method, target, header, body, token, 2)
	if err != nil {
		return nil, err
	}
	if rejected {
		errorsTotal.WithLabelValues("auth").Inc()
		c.logger.Error().
			Str("method", method).
			Str("target", target.String()).
			Msg("Refreshed access token rejected")
		return nil, &auth.AuthError{Op: "request", StatusCode: resp.StatusCode, Err: auth.ErrCredentialRejected}
	}
	return resp, nil
}

// send performs a single network call after acquiring a budget slot.
func (c *Client) send(ctx context.Context, method string, target *url.URL, header http.Header, body []byte, token string, attempt int) (*Response, bool, error) {
	if c.budget != nil {
		if err := c.budget.Wait(ctx); err != nil {
			return nil, false, fmt.Errorf("rate budget: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, false, &RequestError{Method: method, Target: target.String(), Class: ErrorClassUnexpected, Err: fmt.Errorf("create request: %w", err)}
	}

	for key, values := range header {
		req.Header[key] = append([]string(nil), values...)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIVersionHeader, c.config.APIVersion)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug().
		Str("method", method).
		Str("target", target.String()).
		Int("attempt", attempt).
		Str("request_id", requestID).
		Msg("Executing Fieldwire request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		c.logger.Error().Err(err).Str("method", method).Str("target", target.String()).Msg("HTTP request failed")
		return nil, false, &RequestError{Method: method, Target: target.String(), Class: ErrorClassNetwork, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody+1))
	if err == nil && int64(len(data)) > maxResponseBody {
		errorsTotal.WithLabelValues(string(ErrorClassUnexpected)).Inc()
		c.logger.Error().
			Str("method", method).
			Str("target", target.String()).
			Int64("limit", maxResponseBody).
			Msg("Response body exceeds limit")
		return nil, false, &RequestError{
			Method:     method,
			Target:     target.String(),
			StatusCode: httpResp.StatusCode,
			Class:      ErrorClassUnexpected,
			Err:        fmt.Errorf("%w (limit %d bytes)", ErrResponseTooLarge, maxResponseBody),
		}
	}
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, false, &RequestError{
			Method:     method,
			Target:     target.String(),
			StatusCode: httpResp.StatusCode,
			Class:      ErrorClassNetwork,
			Err:        fmt.Errorf("read response body: %w", err),
		}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Body:       data,
		RequestID:  requestID,
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnauthorized {
		errorsTotal.WithLabelValues(string(classifyStatus(resp.StatusCode))).Inc()
	}
	return resp, c.config.AuthRejected(httpResp), nil
}

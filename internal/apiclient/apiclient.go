// Package apiclient wraps HTTP access to the greenhouse directory API.
// It owns request construction: base URL resolution, JSON encoding,
// bearer token attachment, and translation of failure responses into
// errors carrying the server-supplied message.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrServerUnavailable marks a request that produced no HTTP response at
// all. Callers are expected to render it as a connectivity message
// rather than a server rejection.
var ErrServerUnavailable = errors.New("could not reach server")

// APIError carries a server rejection: the HTTP status and the message
// decoded from the error payload.
type APIError struct {
	Status  int
	Message string
}

// Error returns the server-supplied (or synthesized) message.
func (e *APIError) Error() string {
	return e.Message
}

// errorPayload covers both error field names the server side may use.
// The decode policy is an ordered fallback: "error" first, then
// "message", then a generic status-coded message.
type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client issues JSON requests against a fixed base URL.
type Client struct {
	rst *resty.Client
}

// New returns a Client bound to baseURL with a fixed request timeout.
// No retries or backoff are configured.
func New(baseURL string, timeout time.Duration) *Client {
	rst := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{rst: rst}
}

// Do sends a request to the given relative endpoint. A non-empty token
// is attached as a bearer Authorization header. When out is non-nil the
// success payload is decoded into it; the payload shape is caller-defined
// and not validated here.
func (c *Client) Do(
	ctx context.Context,
	method string,
	endpoint string,
	body any,
	token string,
	out any,
) error {
	request := c.rst.R().SetContext(ctx)

	if body != nil {
		request.SetBody(body)
	}
	if token != "" {
		request.SetAuthToken(token)
	}

	response, err := request.Execute(method, endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}

	if response.IsError() {
		return decodeError(response)
	}

	if out != nil {
		if err := json.Unmarshal(response.Body(), out); err != nil {
			return &APIError{
				Status:  response.StatusCode(),
				Message: genericMessage(response.StatusCode()),
			}
		}
	}

	return nil
}

func decodeError(response *resty.Response) error {
	result := &APIError{
		Status:  response.StatusCode(),
		Message: genericMessage(response.StatusCode()),
	}

	payload := errorPayload{}
	if err := json.Unmarshal(response.Body(), &payload); err != nil {
		return result
	}

	switch {
	case payload.Error != "":
		result.Message = payload.Error
	case payload.Message != "":
		result.Message = payload.Message
	}

	return result
}

func genericMessage(status int) string {
	return fmt.Sprintf("Error %d", status)
}

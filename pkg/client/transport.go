package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
)

// TokenSource reads the current access token; "" means none is stored.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenAcquirer obtains a fresh access token after a 401.
type TokenAcquirer interface {
	AcquireToken(ctx context.Context) (string, error)
}

// Transport is the authenticated request gateway. It attaches the stored
// access token as a bearer credential and, when the backend answers 401,
// acquires a fresh token and re-sends the request once.
//
// A request is retried at most once: the response to the retry is returned
// as-is, even if it is another 401. Any other status and any transport
// failure is returned unchanged.
type Transport struct {
	Base    http.RoundTripper
	Tokens  TokenSource
	Refresh TokenAcquirer
	Logger  *slog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	req, err := rewindable(req)
	if err != nil {
		return nil, err
	}
	if req.Header.Get(headerRequestID) == "" {
		req.Header.Set(headerRequestID, uuid.NewString())
	}

	accessToken, err := t.Tokens.AccessToken(ctx)
	if err != nil {
		closeBody(req)
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if accessToken != "" {
		req.Header.Set(headerAuthorization, bearer(accessToken))
	}

	res, err := t.base().RoundTrip(req)
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}

	// the first 401 consumes the request's only retry
	drain(res)
	t.logger().Debug("access token rejected, refreshing",
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.String("request_id", req.Header.Get(headerRequestID)))

	freshToken, err := t.Refresh.AcquireToken(ctx)
	if err != nil {
		return nil, &RefreshError{Err: err}
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		if retry.Body, err = req.GetBody(); err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
	}
	retry.Header.Set(headerAuthorization, bearer(freshToken))
	return t.base().RoundTrip(retry)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// rewindable returns a copy of req whose body can be replayed for a retry.
// The caller's body is always closed.
func rewindable(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		clone.Body = body
		return clone, nil
	}

	payload, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	clone.Body = io.NopCloser(bytes.NewReader(payload))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	return clone, nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}

func drain(res *http.Response) {
	io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	res.Body.Close()
}

func bearer(token string) string {
	return "Bearer " + token
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// requester issues JSON requests against one base URL through an
// http.Client. Public and Client share it; they differ only in transport.
type requester struct {
	baseURL    string
	httpClient *http.Client
}

func (r *requester) BaseURL() string {
	return r.baseURL
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

func (r *requester) do(
	ctx context.Context,
	method string,
	path string,
	body any,
	out any,
) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	url := strings.TrimRight(r.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := r.httpClient.Do(req)
	if err != nil {
		// the transport's refresh failure travels inside *url.Error
		var refreshErr *RefreshError
		if errors.As(err, &refreshErr) {
			return refreshErr
		}
		return &NetworkError{Method: method, URL: url, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &NetworkError{Method: method, URL: url, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return statusError(res.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return decodeData(raw, out)
}

// decodeData unwraps a {"data": ...} envelope, falling back to the raw body
// when the response is not enveloped.
func decodeData(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(code int, raw []byte) *StatusError {
	statusErr := &StatusError{Code: code}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		statusErr.Message = body.Message
		if statusErr.Message == "" {
			statusErr.Message = body.Error
		}
		statusErr.Fields = body.Errors
	} else {
		statusErr.Message = strings.TrimSpace(string(raw))
	}
	return statusErr
}

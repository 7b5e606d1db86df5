// Package client provides a small, generic HTTP client for sending GET
// and POST requests to external APIs, built directly on [pkg/httpio]
// instead of net/http.
package client

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/halprin/httpwire/pkg/httpio"
)

const (
	AcceptJSON  = "application/json"
	ContentJSON = "application/json; charset=utf-8"

	timeout = 3 * time.Second
	maxSize = 10 << 20 // 10 MiB.
)

// HTTPRequest sends an HTTP GET or POST request to an external API, and
// returns the response body alongside the number of seconds a 429 response
// asked the caller to wait before retrying (0 for any other status).
//
// For GET requests, queryOrJSONBody is expected to be [url.Values], appended
// to the URL as a query string. For POST requests, it can be any value that
// encodes as JSON, and is sent as the request body.
func HTTPRequest(ctx context.Context, httpMethod, rawURL, authToken, accept, contentType string, queryOrJSONBody any) ([]byte, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse URL %q: %w", rawURL, err)
	}

	body, err := requestBody(httpMethod, queryOrJSONBody)
	if err != nil {
		return nil, 0, err
	}
	if httpMethod == "GET" {
		if q, ok := queryOrJSONBody.(url.Values); ok {
			u.RawQuery = q.Encode()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, u)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to dial %q: %w", u.Host, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := sendRequest(conn, httpMethod, u, authToken, accept, contentType, body); err != nil {
		return nil, 0, fmt.Errorf("failed to send HTTP request: %w", err)
	}

	stream := httpio.NewByteStreamFromReader(conn, maxSize)
	msg, err := httpio.ReadResponse(stream, httpMethod)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read HTTP response: %w", err)
	}

	respBody, err := msg.Body.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read HTTP response body: %w", err)
	}

	return parseResponse(msg, respBody)
}

// BasicAuth builds the value of an HTTP Basic Authorization header's
// credentials, i.e. base64(user:pass), without the "Basic " prefix.
func BasicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	var d net.Dialer
	if u.Scheme == "https" {
		return tls.DialWithDialer(&d, "tcp", host, &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12})
	}
	return d.DialContext(ctx, "tcp", host)
}

func sendRequest(conn net.Conn, method string, u *url.URL, token, accept, contentType string, body []byte) error {
	w := httpio.NewWriter(conn)

	uri := u.RequestURI()
	if err := w.WriteRequestLine(method, uri, 1, 1); err != nil {
		return err
	}

	if err := w.WriteHeader("Host", u.Host); err != nil {
		return err
	}
	if err := w.WriteHeader("Accept", accept); err != nil {
		return err
	}
	if token != "" {
		if err := w.WriteHeader("Authorization", "Bearer "+token); err != nil {
			return err
		}
	}
	if len(body) > 0 {
		if err := w.WriteHeader("Content-Type", contentType); err != nil {
			return err
		}
		if err := w.WriteHeader("Content-Length", httpio.ContentLengthHeader(len(body))); err != nil {
			return err
		}
	}
	if err := w.WriteHeader("Connection", "close"); err != nil {
		return err
	}
	if err := w.EndHeaders(); err != nil {
		return err
	}

	if len(body) > 0 {
		if err := w.WriteBody(body); err != nil {
			return err
		}
	}

	return w.Flush()
}

func requestBody(method string, queryOrJSONBody any) ([]byte, error) {
	if method == "GET" {
		return nil, nil
	}

	b, err := json.Marshal(queryOrJSONBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode HTTP request's JSON body: %w", err)
	}
	return b, nil
}

// parseResponse classifies a [httpio.Message]'s status code. 4xx/5xx
// statuses are turned into an error; a 429 additionally reports how many
// seconds the Retry-After header asked the caller to wait.
func parseResponse(msg *httpio.Message, body []byte) ([]byte, int, error) {
	code := msg.Status.StatusCode
	if code < 400 {
		return body, 0, nil
	}

	status := fmt.Sprintf("%d %s", code, msg.Status.Reason)

	if code == 429 {
		retryAfter, _ := msg.Headers.Get("Retry-After")
		wait, _ := strconv.Atoi(strings.TrimSpace(retryAfter))
		if wait > 0 {
			status = fmt.Sprintf("%s (retry after %d seconds)", status, wait)
		}
		if len(body) > 0 {
			return nil, wait, fmt.Errorf("%s: %s", status, body)
		}
		return nil, wait, fmt.Errorf("%s", status)
	}

	if len(body) > 0 {
		return nil, 0, fmt.Errorf("%s: %s", status, body)
	}
	return nil, 0, fmt.Errorf("%s", status)
}

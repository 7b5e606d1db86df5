package client

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/halprin/httpwire/pkg/httpio"
)

func TestHTTPRequest(t *testing.T) {
	tests := []struct {
		name       string
		httpMethod string
		body       any
	}{
		{name: "get", httpMethod: "GET", body: url.Values{}},
		{name: "post", httpMethod: "POST", body: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := startServer(t, func(r *httpio.Message) (int, string, []byte) {
				if got, _ := r.Headers.Get("Accept"); got != AcceptJSON {
					t.Errorf("accept header = %q, want %q", got, AcceptJSON)
				}
				if got, _ := r.Headers.Get("Authorization"); got != "Bearer token" {
					t.Errorf("authorization header = %q, want %q", got, "Bearer token")
				}
				return 200, "OK", []byte("body\n")
			})

			got, wait, err := HTTPRequest(t.Context(), tt.httpMethod, "http://"+addr+"/", "token", AcceptJSON, ContentJSON, tt.body)
			if err != nil {
				t.Fatalf("HTTPRequest() error = %v", err)
			}
			if wait != 0 {
				t.Errorf("HTTPRequest() wait = %d, want 0", wait)
			}
			if string(got) != "body\n" {
				t.Errorf("HTTPRequest() = %q, want %q", string(got), "body\n")
			}
		})
	}

	t.Run("server_not_responding", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Listen() error = %v", err)
		}
		addr := ln.Addr().String()
		ln.Close() // Nothing listens here anymore.

		_, _, err = HTTPRequest(t.Context(), "POST", "http://"+addr+"/", "token", AcceptJSON, ContentJSON, "body")
		if err == nil {
			t.Fatal("HTTPRequest() error = nil, want non-nil")
		}
	})
}

// startServer runs a one-shot HTTP/1.1 server on a loopback port, driving
// resp once per accepted connection, and returns its address.
func startServer(t *testing.T, resp func(*httpio.Message) (code int, reason string, body []byte)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		stream := httpio.NewByteStreamFromReader(conn, 0)
		msg, err := httpio.ReadRequest(stream)
		if err != nil {
			return
		}
		_, _ = msg.Body.ReadAll()

		code, reason, body := resp(msg)

		w := httpio.NewWriter(conn)
		_ = w.WriteStatusLine(1, 1, code, reason)
		_ = w.WriteHeader("Content-Length", strconv.Itoa(len(body)))
		_ = w.EndHeaders()
		_ = w.WriteBody(body)
		_ = w.Flush()
	}()

	return ln.Addr().String()
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		retryAfter string
		body       []byte
		wantErr    string
		wantWait   int
	}{
		{
			name:       "200_ok",
			statusCode: http.StatusOK,
			body:       []byte(`{"key":"value"}`),
		},
		{
			name:       "400_bad_request",
			statusCode: http.StatusBadRequest,
			wantErr:    "400 Bad Request",
		},
		{
			name:       "429_too_many_requests",
			statusCode: http.StatusTooManyRequests,
			retryAfter: "5",
			body:       []byte("retry error text"),
			wantErr:    "429 Too Many Requests (retry after 5 seconds): retry error text",
			wantWait:   5,
		},
		{
			name:       "429_too_many_requests_invalid_header",
			statusCode: http.StatusTooManyRequests,
			retryAfter: "soon",
			body:       []byte("retry error text"),
			wantErr:    "429 Too Many Requests: retry error text",
		},
		{
			name:       "500_internal_server_error",
			statusCode: http.StatusInternalServerError,
			body:       []byte("internal server error"),
			wantErr:    "500 Internal Server Error: internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := httpio.Header{}
			if tt.retryAfter != "" {
				h = append(h, httpio.HeaderField{Name: "Retry-After", Value: tt.retryAfter})
			}
			msg := &httpio.Message{
				Status:  &httpio.StatusLine{StatusCode: tt.statusCode, Reason: http.StatusText(tt.statusCode)},
				Headers: h,
			}

			_, gotWait, err := parseResponse(msg, tt.body)
			if (err != nil) != (tt.wantErr != "") || (err != nil && err.Error() != tt.wantErr) {
				t.Errorf("parseResponse() error = %v, want %q", err, tt.wantErr)
				return
			}

			if gotWait != tt.wantWait {
				t.Errorf("parseResponse() wait = %d, want %d", gotWait, tt.wantWait)
			}
		})
	}
}

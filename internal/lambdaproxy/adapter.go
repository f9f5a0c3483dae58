// Package lambdaproxy bridges API Gateway HTTP API (payload v2) events to a
// standard http.Handler so the same chi router serves both the local HTTP
// listener and AWS Lambda.
package lambdaproxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Adapter serves API Gateway v2 events through an http.Handler.
type Adapter struct {
	handler http.Handler
}

// New wraps handler for use with lambda.Start.
func New(handler http.Handler) *Adapter {
	return &Adapter{handler: handler}
}

// Handle converts the event, runs the handler and converts the response.
// A malformed event yields an error so Lambda reports the invocation failed.
func (a *Adapter) Handle(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	req, err := NewRequest(ctx, event)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}

	w := newResponseWriter()
	a.handler.ServeHTTP(w, req)
	return w.toEvent(), nil
}

// NewRequest builds an *http.Request from an API Gateway v2 event.
func NewRequest(ctx context.Context, event events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	method := event.RequestContext.HTTP.Method
	if method == "" {
		return nil, fmt.Errorf("lambdaproxy: event has no HTTP method")
	}

	path := event.RawPath
	if path == "" {
		path = event.RequestContext.HTTP.Path
	}
	if path == "" {
		path = "/"
	}
	target := path
	if event.RawQueryString != "" {
		target += "?" + event.RawQueryString
	}

	var body io.Reader = http.NoBody
	if event.Body != "" {
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(event.Body)
			if err != nil {
				return nil, fmt.Errorf("lambdaproxy: decode body: %w", err)
			}
			body = bytes.NewReader(decoded)
		} else {
			body = strings.NewReader(event.Body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("lambdaproxy: build request: %w", err)
	}

	for name, value := range event.Headers {
		if strings.EqualFold(name, "host") {
			req.Host = value
			continue
		}
		req.Header.Set(name, value)
	}
	if len(event.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(event.Cookies, "; "))
	}

	if req.Host == "" {
		req.Host = event.RequestContext.DomainName
	}
	req.RemoteAddr = event.RequestContext.HTTP.SourceIP
	req.RequestURI = target
	return req, nil
}

// responseWriter buffers a handler's response for conversion into an event.
type responseWriter struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: make(http.Header), status: http.StatusOK}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *responseWriter) toEvent() events.APIGatewayV2HTTPResponse {
	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: w.status,
		Headers:    make(map[string]string, len(w.header)),
	}
	for name, values := range w.header {
		if name == "Set-Cookie" {
			resp.Cookies = append(resp.Cookies, values...)
			continue
		}
		resp.Headers[name] = strings.Join(values, ", ")
	}

	if isBinary(w.header) {
		resp.Body = base64.StdEncoding.EncodeToString(w.body.Bytes())
		resp.IsBase64Encoded = true
	} else {
		resp.Body = w.body.String()
	}
	return resp
}

// isBinary reports whether the body must be base64-encoded for API Gateway.
// Compressed bodies are always binary.
func isBinary(h http.Header) bool {
	if enc := h.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return true
	}
	ct := strings.ToLower(h.Get("Content-Type"))
	if ct == "" {
		return false
	}
	mediaType, _, _ := strings.Cut(ct, ";")
	mediaType = strings.TrimSpace(mediaType)
	switch {
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/json",
		mediaType == "application/xml",
		mediaType == "application/javascript",
		mediaType == "application/x-www-form-urlencoded",
		strings.HasSuffix(mediaType, "+json"),
		strings.HasSuffix(mediaType, "+xml"):
		return false
	}
	return true
}

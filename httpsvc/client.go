// Package httpsvc implements the HTTP surfaces passthrough (Query,
// Analytics, Search, Views, Config-Streaming) named in spec.md §6/§9: a
// thin stdlib net/http client that resolves a request's target node from
// the shared topology and round-trips it, leaving response-body schema
// decoding to layers above the core (spec.md §1 Non-goals).
package httpsvc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avsej/gocbcore-lite/corecore"
	"github.com/avsej/gocbcore-lite/locator"
	"github.com/avsej/gocbcore-lite/sasl"
	"github.com/avsej/gocbcore-lite/topology"
)

// HTTPRequest is one outbound passthrough request against a non-KV
// service (spec.md §9 "HTTP surfaces").
type HTTPRequest struct {
	Service  topology.ServiceType
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     []byte
	Deadline time.Time
}

// HTTPResponse is a fully buffered passthrough response.
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client resolves HTTPRequest targets against a shared topology.Store and
// round-trips them over a single keep-alive net/http.Client, the way the
// teacher's outbound API clients reuse one *http.Client per backend rather
// than dialing per request.
type Client struct {
	Store      *topology.Store
	RoundRobin func(service topology.ServiceType) *locator.RoundRobin
	HTTPClient *http.Client
	TLSEnabled bool

	Username    string
	Password    string
	Credentials sasl.CredentialsProvider
}

// NewClient builds a Client with a sane default *http.Client (connection
// reuse, no redirect following — the server never redirects these
// endpoints and silently following one would hide a misconfiguration).
func NewClient(store *topology.Store, roundRobin func(topology.ServiceType) *locator.RoundRobin) *Client {
	return &Client{
		Store:      store,
		RoundRobin: roundRobin,
		HTTPClient: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// RoundTrip resolves req's target node via the locator's round-robin
// selection over nodes advertising req.Service, issues the HTTP call, and
// buffers the full response body (spec.md §9).
func (c *Client) RoundTrip(ctx context.Context, req HTTPRequest) (*HTTPResponse, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(req.Service.String(), httpReq.URL.Host).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(req.Service.String(), httpReq.URL.Host).WithCause(err)
	}
	return &HTTPResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Stream is RoundTrip's streaming variant: it returns the live response
// body instead of buffering it, for config-streaming and large query/
// analytics result sets (spec.md §9 "streaming variant"). The caller must
// Close the returned body; pair it with httpstream.NewReader to decode
// successive chunked JSON documents.
func (c *Client) Stream(ctx context.Context, req HTTPRequest) (io.ReadCloser, *http.Response, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(req.Service.String(), httpReq.URL.Host).WithCause(err)
	}
	return resp.Body, resp, nil
}

func (c *Client) buildRequest(ctx context.Context, req HTTPRequest) (*http.Request, error) {
	bc := c.Store.Current()
	if bc == nil {
		return nil, corecore.New(corecore.KindServiceNotAvailable)
	}

	rr := c.RoundRobin(req.Service)
	idx, ok := rr.Next(bc.NodesWithService(req.Service))
	if !ok {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(req.Service.String(), "")
	}
	node := bc.Nodes[idx]
	addr, ok := node.Address(req.Service, c.TLSEnabled)
	if !ok {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(req.Service.String(), node.Hostname)
	}

	scheme := "http"
	if c.TLSEnabled {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: req.Path, RawQuery: req.Query.Encode()}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx = req.deadlineContext(ctx)
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, corecore.New(corecore.KindServiceNotAvailable).WithContext(req.Service.String(), addr).WithCause(err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	if err := c.authenticate(ctx, httpReq, req.Service); err != nil {
		return nil, err
	}
	return httpReq, nil
}

func (req HTTPRequest) deadlineContext(ctx context.Context) context.Context {
	if req.Deadline.IsZero() {
		return ctx
	}
	ctx, _ = context.WithDeadline(ctx, req.Deadline)
	return ctx
}

func (c *Client) authenticate(ctx context.Context, httpReq *http.Request, service topology.ServiceType) error {
	username, password := c.Username, c.Password
	if c.Credentials != nil {
		creds, err := c.Credentials.Credentials(ctx, service.String())
		if err != nil {
			return corecore.New(corecore.KindAuthenticationFailure).WithContext(service.String(), httpReq.URL.Host).WithCause(err)
		}
		username, password = creds.Username, creds.Password
	}
	if username != "" {
		httpReq.SetBasicAuth(username, password)
	}
	return nil
}


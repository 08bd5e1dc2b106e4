package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/remotectl/internal/auth"
	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/result"
	"golang.org/x/net/http2"
)

// StatusError is a non-200 answer or one with the wrong content type.
type StatusError struct {
	URL         string
	Status      int
	ContentType string
	Body        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: %s answered %d (%s): %s", e.URL, e.Status, e.ContentType, e.Body)
}

type TransportOption func(*Transport)

func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) { t.client = c }
}

// WithH2C speaks cleartext HTTP/2 to the receiver.
func WithH2C() TransportOption {
	return func(t *Transport) {
		t.client = &http.Client{
			Timeout: t.client.Timeout,
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		}
	}
}

// WithToken presents token as a bearer credential on every request.
func WithToken(token string) TransportOption {
	return func(t *Transport) { t.token = token }
}

func WithLimits(limits frame.Limits) TransportOption {
	return func(t *Transport) { t.limits = limits }
}

type Transport struct {
	url    string
	codec  *codec.Registry
	client *http.Client
	limits frame.Limits
	token  string
}

// NewTransport posts chains to url, the receiver's chain route.
func NewTransport(url string, reg *codec.Registry, opts ...TransportOption) *Transport {
	t := &Transport{
		url:    url,
		codec:  reg,
		client: &http.Client{Timeout: 60 * time.Second},
		limits: frame.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Send(ctx context.Context, chain command.Chain) (result.Result, error) {
	body, err := command.EncodeChain(chain, t.limits)
	if err != nil {
		return result.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return result.Result{}, err
	}
	req.Header.Set("Content-Type", ChainMediaType)
	req.Header.Set("Accept", ResultMediaType)
	if t.token != "" {
		req.Header.Set("Authorization", auth.Bearer(t.token))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return result.Result{}, fmt.Errorf("httpx: post %s: %w", t.url, err)
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	mt, _, _ := mime.ParseMediaType(ct)
	if resp.StatusCode != http.StatusOK || mt != ResultMediaType {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return result.Result{}, &StatusError{URL: t.url, Status: resp.StatusCode, ContentType: ct, Body: string(bytes.TrimSpace(snippet))}
	}
	return result.Read(resp.Body, t.limits, t.codec)
}

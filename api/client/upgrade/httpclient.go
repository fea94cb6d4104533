package upgrade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/dnscache"

	"github.com/offboardpro/offboardpro/api/apperrors"
	"github.com/offboardpro/offboardpro/api/models"
)

// RemoteError is an error envelope returned by the API.
type RemoteError struct {
	Status  int
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Kind, e.Message)
}

// TokenSource returns the caller's current bearer token.
type TokenSource func(ctx context.Context) (string, error)

// HTTPClient is the OrderClient for a remote API.
type HTTPClient struct {
	baseURL string
	token   TokenSource
	http    *http.Client
}

// NewHTTPClient talks to baseURL. A nil hc gets a client whose dialer caches
// DNS lookups.
func NewHTTPClient(baseURL string, token TokenSource, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second, Transport: cachedDNSTransport(&dnscache.Resolver{})}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

func cachedDNSTransport(r *dnscache.Resolver) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := r.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = &net.DNSError{Err: "no IP addresses found", Name: host}
		}
		return nil, lastErr
	}
	return t
}

func (c *HTTPClient) CreateOrder(ctx context.Context, amount int64, cycle models.BillingCycle) (Order, error) {
	var o Order
	body := map[string]interface{}{"amount": amount, "billingCycle": cycle}
	err := c.post(ctx, "/api/orders", body, &o)
	return o, err
}

func (c *HTTPClient) ConfirmPayment(ctx context.Context, p Payment) (Confirmed, error) {
	var conf Confirmed
	err := c.post(ctx, "/api/payments/confirm", p, &conf)
	return conf, err
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrAuthRequired, err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrUpstream, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", apperrors.ErrUpstream, path, err)
	}
	if resp.StatusCode >= 300 {
		var b apperrors.Body
		_ = json.Unmarshal(data, &b)
		if b.Error == "" {
			b.Error = strings.TrimSpace(string(data))
		}
		return &RemoteError{Status: resp.StatusCode, Kind: b.Kind, Message: b.Error}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", apperrors.ErrUpstream, path, err)
	}
	return nil
}

package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/artcatalog/backend/internal/config"
)

// ImagePayload carries one incoming image. Exactly one of Data, Base64 or URL is used,
// in that order of precedence.
type ImagePayload struct {
	Data     []byte
	Base64   string
	URL      string
	Filename string
}

func (p ImagePayload) Empty() bool {
	return len(p.Data) == 0 && strings.TrimSpace(p.Base64) == "" && strings.TrimSpace(p.URL) == ""
}

// PayloadResolver turns an ImagePayload into raw bytes.
type PayloadResolver struct {
	client  *http.Client
	maxSize int64
}

var errNonPublicAddress = errors.New("address is not publicly routable")

// NewPayloadResolver fetches image URLs only from public addresses unless
// FETCH_ALLOW_PRIVATE is set.
func NewPayloadResolver(cfg *config.Config) *PayloadResolver {
	return NewPayloadResolverWithClient(newFetchClient(cfg.FetchTimeout, !cfg.FetchAllowPrivate), cfg.UploadMaxImageSize)
}

// NewPayloadResolverWithClient uses client as given. A nil client gets the
// public-only default.
func NewPayloadResolverWithClient(client *http.Client, maxSize int64) *PayloadResolver {
	if client == nil {
		client = newFetchClient(20*time.Second, true)
	}
	if maxSize <= 0 {
		maxSize = 40 * 1024 * 1024
	}
	return &PayloadResolver{client: client, maxSize: maxSize}
}

// Bytes returns the payload bytes. Transport problems (bad base64, unreachable
// URL, oversized body) are validation errors.
func (r *PayloadResolver) Bytes(ctx context.Context, p ImagePayload) ([]byte, error) {
	switch {
	case len(p.Data) > 0:
		if int64(len(p.Data)) > r.maxSize {
			return nil, &ValidationError{Field: "image", Reason: "image too large"}
		}
		return p.Data, nil
	case strings.TrimSpace(p.Base64) != "":
		return r.decodeBase64(p.Base64)
	case strings.TrimSpace(p.URL) != "":
		return r.fetch(ctx, strings.TrimSpace(p.URL))
	default:
		return nil, &ValidationError{Field: "image", Reason: "empty image payload"}
	}
}

func (r *PayloadResolver) decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	// data URIs: data:image/png;base64,....
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, &ValidationError{Field: "image_base64", Reason: "invalid base64 data"}
	}
	if len(data) == 0 {
		return nil, &ValidationError{Field: "image_base64", Reason: "empty image payload"}
	}
	if int64(len(data)) > r.maxSize {
		return nil, &ValidationError{Field: "image_base64", Reason: "image too large"}
	}
	return data, nil
}

func newFetchClient(timeout time.Duration, publicOnly bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if publicOnly {
		// the check runs on the resolved address, so redirects and DNS names
		// pointing inward are caught as well
		dialer := &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
			Control: func(network, address string, _ syscall.RawConn) error {
				host, _, err := net.SplitHostPort(address)
				if err != nil {
					return err
				}
				if ip := net.ParseIP(host); ip == nil || !publicIP(ip) {
					return fmt.Errorf("%s: %w", host, errNonPublicAddress)
				}
				return nil
			},
		}
		transport.Proxy = nil
		transport.DialContext = dialer.DialContext
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func publicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast())
}

func (r *PayloadResolver) fetch(ctx context.Context, raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ValidationError{Field: "image_url", Reason: "must be an absolute http(s) URL"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &ValidationError{Field: "image_url", Reason: err.Error()}
	}
	resp, err := r.client.Do(req)
	if errors.Is(err, errNonPublicAddress) {
		return nil, &ValidationError{Field: "image_url", Reason: "must point at a public host"}
	}
	if err != nil {
		return nil, &ValidationError{Field: "image_url", Reason: fmt.Sprintf("fetch failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ValidationError{Field: "image_url", Reason: fmt.Sprintf("fetch failed: HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxSize+1))
	if err != nil {
		return nil, &ValidationError{Field: "image_url", Reason: fmt.Sprintf("fetch failed: %v", err)}
	}
	if int64(len(data)) > r.maxSize {
		return nil, &ValidationError{Field: "image_url", Reason: "image too large"}
	}
	if len(data) == 0 {
		return nil, &ValidationError{Field: "image_url", Reason: "empty response body"}
	}
	return data, nil
}

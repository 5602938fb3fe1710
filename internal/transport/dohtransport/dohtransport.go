// Package dohtransport implements upstream.Transport over DNS-over-HTTPS
// (RFC 8484), POSTing the wire-format query as application/dns-message
// and reading the wire-format response back from the body.
package dohtransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"dnsrouter/internal/dnsmsg"
)

const contentType = "application/dns-message"

// DefaultTimeout bounds a single DoH round trip.
const DefaultTimeout = 5 * time.Second

// Transport issues DoH POST requests against a single resolver URL.
type Transport struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// New builds a Transport tuned for HTTP/2, as DoH resolvers are
// expected to speak.
func New(url string) *Transport {
	return &Transport{
		URL: url,
		Client: &http.Client{
			Transport: &http2.Transport{
				AllowHTTP: false,
			},
		},
		Timeout: DefaultTimeout,
	}
}

// Query implements upstream.Transport.
func (t *Transport) Query(ctx context.Context, msg dnsmsg.Packet) (dnsmsg.Packet, error) {
	wire, err := msg.Marshal()
	if err != nil {
		return dnsmsg.Packet{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(wire))
	if err != nil {
		return dnsmsg.Packet{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)

	resp, err := t.Client.Do(req)
	if err != nil {
		return dnsmsg.Packet{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dnsmsg.Packet{}, fmt.Errorf("dohtransport: upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return dnsmsg.Packet{}, err
	}
	return dnsmsg.ParsePacket(body)
}

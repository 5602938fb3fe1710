// Package udptransport implements upstream.Transport over plain DNS on
// UDP, with a pooled connection per upstream, timeout-driven retries,
// and TCP fallback when a response comes back truncated.
package udptransport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"dnsrouter/internal/dnsmsg"
	"dnsrouter/internal/helpers"
)

const (
	// DefaultPoolSize is the number of pre-dialed UDP sockets kept
	// ready per upstream.
	DefaultPoolSize = 64
	// DefaultUDPTimeout bounds a single UDP attempt.
	DefaultUDPTimeout = 3 * time.Second
	// DefaultTCPTimeout bounds the TCP fallback exchange.
	DefaultTCPTimeout = 5 * time.Second
	// DefaultMaxRetries bounds retry attempts on a timeout.
	DefaultMaxRetries = 3
	// recvBufSize is large enough for a non-EDNS UDP response; any
	// larger answer sets the truncation bit and is retried over TCP.
	recvBufSize = 4096
)

// Transport is a udptransport.Transport bound to a single upstream
// address.
type Transport struct {
	Addr        string
	PoolSize    int
	UDPTimeout  time.Duration
	TCPTimeout  time.Duration
	MaxRetries  int
	TCPFallback bool

	pool chan *net.UDPConn
}

// New builds a Transport for addr (host:port), pre-dialing a pool of
// UDP sockets.
func New(addr string) (*Transport, error) {
	t := &Transport{
		Addr:        addr,
		PoolSize:    DefaultPoolSize,
		UDPTimeout:  DefaultUDPTimeout,
		TCPTimeout:  DefaultTCPTimeout,
		MaxRetries:  DefaultMaxRetries,
		TCPFallback: true,
	}
	if err := t.ensurePool(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transport) ensurePool() error {
	t.pool = make(chan *net.UDPConn, t.PoolSize)
	udpAddr, err := net.ResolveUDPAddr("udp", t.Addr)
	if err != nil {
		return fmt.Errorf("udptransport: resolve %s: %w", t.Addr, err)
	}
	for range t.PoolSize {
		c, err := net.DialUDP("udp", nil, udpAddr)
		if err != nil {
			break // a partially filled pool is acceptable
		}
		t.pool <- c
	}
	return nil
}

// Query implements upstream.Transport.
func (t *Transport) Query(ctx context.Context, msg dnsmsg.Packet) (dnsmsg.Packet, error) {
	req, err := msg.Marshal()
	if err != nil {
		return dnsmsg.Packet{}, err
	}

	var lastErr error
	for range t.MaxRetries {
		if ctx.Err() != nil {
			return dnsmsg.Packet{}, ctx.Err()
		}
		resp, err := t.attempt(ctx, req)
		if err == nil {
			return dnsmsg.ParsePacket(resp)
		}
		lastErr = err
		if !isTimeout(err) {
			return dnsmsg.Packet{}, err
		}
	}
	return dnsmsg.Packet{}, lastErr
}

func (t *Transport) attempt(ctx context.Context, req []byte) ([]byte, error) {
	conn, fromPool, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}

	ok := true
	defer t.release(conn, fromPool, &ok)

	deadline := time.Now().Add(t.UDPTimeout)
	if d, has := ctx.Deadline(); has && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(req); err != nil {
		ok = false
		return nil, err
	}

	buf := make([]byte, recvBufSize)
	n, err := conn.Read(buf)
	if err != nil {
		ok = false
		return nil, err
	}
	resp := buf[:n:n]

	if t.TCPFallback && isTruncated(resp) {
		return t.queryTCP(ctx, req)
	}
	return resp, nil
}

func (t *Transport) acquire(ctx context.Context) (*net.UDPConn, bool, error) {
	select {
	case c := <-t.pool:
		return c, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
		udpAddr, err := net.ResolveUDPAddr("udp", t.Addr)
		if err != nil {
			return nil, false, err
		}
		c, err := net.DialUDP("udp", nil, udpAddr)
		return c, false, err
	}
}

func (t *Transport) release(c *net.UDPConn, fromPool bool, ok *bool) {
	if !*ok {
		_ = c.Close()
		return
	}
	if !fromPool {
		select {
		case t.pool <- c:
		default:
			_ = c.Close()
		}
		return
	}
	select {
	case t.pool <- c:
	default:
		_ = c.Close()
	}
}

func (t *Transport) queryTCP(ctx context.Context, req []byte) ([]byte, error) {
	d := net.Dialer{Timeout: t.TCPTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(t.TCPTimeout))

	lenPrefix := make([]byte, 2)
	binary.BigEndian.PutUint16(lenPrefix, helpers.ClampIntToUint16(len(req)))
	if _, err := conn.Write(append(lenPrefix, req...)); err != nil {
		return nil, err
	}

	var respLenBuf [2]byte
	if _, err := ioReadFull(conn, respLenBuf[:]); err != nil {
		return nil, err
	}
	respLen := binary.BigEndian.Uint16(respLenBuf[:])
	resp := make([]byte, respLen)
	if _, err := ioReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func ioReadFull(conn net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isTruncated reports the TC bit of a raw wire-format message without
// a full parse.
func isTruncated(msg []byte) bool {
	if len(msg) < dnsmsg.HeaderSize {
		return false
	}
	flags := uint16(msg[2])<<8 | uint16(msg[3])
	return flags&0x0200 != 0
}

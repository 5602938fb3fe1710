package udptransport

import (
	"context"
	"net"
	"testing"
	"time"

	"dnsrouter/internal/dnsmsg"
)

// echoUpstream starts a minimal UDP server that parses the incoming
// query and replies with a fixed A record answer, mimicking a real
// upstream resolver closely enough to exercise the pooling and
// round-trip path.
func echoUpstream(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := dnsmsg.ParsePacket(buf[:n])
			if err != nil {
				continue
			}
			resp := dnsmsg.Packet{Header: req.Header, Questions: req.Questions}
			resp.HeaderMut().SetQR(true)
			resp.HeaderMut().SetRCode(dnsmsg.RCodeNoError)
			if len(req.Questions) > 0 {
				resp.Answers = []dnsmsg.Record{
					dnsmsg.NewIPRecord(dnsmsg.RRHeader{Name: req.Questions[0].Name, Class: uint16(dnsmsg.ClassIN), TTL: 60}, net.ParseIP("93.184.216.34")),
				}
			}
			out, err := resp.Marshal()
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(out, addr)
		}
	}()
	return conn.LocalAddr().String()
}

func TestTransportQueryRoundTrip(t *testing.T) {
	addr := echoUpstream(t)
	tr, err := New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr.UDPTimeout = time.Second

	req := dnsmsg.Packet{Header: dnsmsg.Header{ID: 7}}
	req.Questions = []dnsmsg.Question{{Name: "example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}}

	resp, err := tr.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.RCode() != dnsmsg.RCodeNoError {
		t.Fatalf("expected NOERROR, got %v", resp.RCode())
	}
	if len(resp.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(resp.Answers))
	}
}

func TestIsTruncatedDetectsTCBit(t *testing.T) {
	msg := make([]byte, dnsmsg.HeaderSize)
	msg[2] = 0x02 // TC bit within the high flags byte
	if !isTruncated(msg) {
		t.Fatal("expected TC bit to be detected")
	}
	msg[2] = 0x00
	if isTruncated(msg) {
		t.Fatal("expected no truncation without TC bit")
	}
}

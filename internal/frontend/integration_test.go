package frontend

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsrouter/internal/dnsmsg"
	"dnsrouter/internal/matcher"
	"dnsrouter/internal/routeengine"
	"dnsrouter/internal/ruletable"
	"dnsrouter/internal/upstream"
)

// staticUpstream answers every query with a fixed A record over the
// question's own name, standing in for a real upstream transport in
// this end-to-end test.
type staticUpstream struct{}

func (staticUpstream) Query(ctx context.Context, msg dnsmsg.Packet) (dnsmsg.Packet, error) {
	h := dnsmsg.Header{ID: msg.Header.ID, QDCount: 1, ANCount: 1}
	h.SetQR(true)
	return dnsmsg.Packet{
		Header:    h,
		Questions: msg.Questions,
		Answers: []dnsmsg.Record{
			dnsmsg.NewIPRecord(dnsmsg.RRHeader{Name: msg.QName(), Class: uint16(dnsmsg.ClassIN), TTL: 300}, net.IPv4(10, 0, 0, 2)),
		},
	}, nil
}

func TestUDPServer_EndToEndQuery(t *testing.T) {
	reg := upstream.NewRegistry()
	reg.Register("up", staticUpstream{})

	table := &ruletable.Table{
		Start: "route",
		Rules: map[string]ruletable.Rule{
			"route": ruletable.SeqBlock{
				{
					Cond:    matcher.Any{},
					Actions: []ruletable.Action{{Kind: ruletable.ActionQuery, UpstreamTag: "up", CacheMode: ruletable.Standard}},
					NextTag: ruletable.EndTag,
				},
			},
		},
	}
	require.NoError(t, table.Validate())

	engine := routeengine.NewEngine(table, reg, nil)
	h := &QueryHandler{Engine: engine, Timeout: 2 * time.Second}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err, "listen udp failed")
	addr := conn.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &UDPServer{Handler: h, WorkersPerSocket: 8}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.RunOnConn(ctx, conn) }()
	defer func() {
		_ = srv.Stop(2 * time.Second)
		cancel()
		<-errCh
	}()

	client, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: addr.IP, Port: addr.Port})
	require.NoError(t, err, "dial udp failed")
	defer client.Close()

	reqHeader := dnsmsg.Header{ID: 0xABCD}
	reqHeader.SetRD(true)
	req := dnsmsg.Packet{
		Header:    reqHeader,
		Questions: []dnsmsg.Question{{Name: "www.test.local", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}},
	}
	b, err := req.Marshal()
	require.NoError(t, err, "marshal failed")

	_ = client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Write(b)
	require.NoError(t, err, "write failed")

	buf := make([]byte, 2048)
	n, err := client.Read(buf)
	require.NoError(t, err, "read failed")

	resp, err := dnsmsg.ParsePacket(buf[:n])
	require.NoError(t, err, "parse failed")

	assert.Equal(t, uint16(0xABCD), resp.Header.ID, "transaction ID mismatch")
	assert.True(t, resp.QR(), "expected QR=1")
	assert.Equal(t, dnsmsg.RCodeNoError, resp.RCode(), "expected NOERROR rcode")
	require.Len(t, resp.Answers, 1, "expected 1 answer")
	assert.Equal(t, dnsmsg.TypeA, resp.Answers[0].Type(), "expected A record")
}

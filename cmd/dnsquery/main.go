// Command dnsquery sends a single DNS query over UDP and prints the
// parsed response, for poking at a running router from the command
// line.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"dnsrouter/internal/dnsmsg"
)

func main() {
	var (
		server   = flag.String("server", "8.8.8.8:53", "DNS server HOST:PORT")
		name     = flag.String("name", "example.com", "Query name")
		qtype    = flag.Int("qtype", 1, "Query type (numeric, A=1)")
		timeout  = flag.Duration("timeout", 2*time.Second, "Timeout")
		recvSize = flag.Int("recv-size", 2048, "UDP receive buffer size")
		quiet    = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	resp, err := queryUDP(*server, *name, uint16(*qtype), *timeout, *recvSize)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		}
		os.Exit(1)
	}
	if *quiet {
		return
	}

	p, err := dnsmsg.ParsePacket(resp)
	if err != nil {
		fmt.Printf("received %d bytes (unparseable)\n", len(resp))
		return
	}

	fmt.Printf("id=%d rcode=%d answers=%d authorities=%d additionals=%d\n",
		p.Header.ID,
		p.RCode(),
		len(p.Answers),
		len(p.Authorities),
		len(p.Additionals),
	)

	rows := make([]string, 0, len(p.Answers))
	for _, rr := range p.Answers {
		rows = append(rows, formatRR(rr))
	}
	sort.Strings(rows)
	for _, s := range rows {
		fmt.Println(s)
	}
}

func queryUDP(server, name string, qtype uint16, timeout time.Duration, recvSize int) ([]byte, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	c, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	reqBytes, err := buildQuery(name, qtype)
	if err != nil {
		return nil, err
	}
	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(reqBytes); err != nil {
		return nil, err
	}
	buf := make([]byte, recvSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func buildQuery(name string, qtype uint16) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}
	id := uint16(time.Now().UnixNano())
	if id == 0 {
		id = 0x1234
	}
	h := dnsmsg.Header{ID: id}
	h.SetRD(true)
	p := dnsmsg.Packet{
		Header:    h,
		Questions: []dnsmsg.Question{{Name: strings.TrimSuffix(name, "."), Type: qtype, Class: uint16(dnsmsg.ClassIN)}},
	}
	return p.Marshal()
}

func formatRR(rr dnsmsg.Record) string {
	h := rr.Header()
	name := h.Name
	if name == "" {
		name = "."
	}
	switch v := rr.(type) {
	case *dnsmsg.IPRecord:
		return fmt.Sprintf("%s %d IN %s %s", name, h.TTL, recordTypeName(rr.Type()), v.Addr.String())
	case *dnsmsg.NameRecord:
		return fmt.Sprintf("%s %d IN %s %s", name, h.TTL, recordTypeName(rr.Type()), v.Target)
	default:
		return fmt.Sprintf("%s %d IN TYPE%d (unparsed)", name, h.TTL, rr.Type())
	}
}

func recordTypeName(t dnsmsg.RecordType) string {
	switch t {
	case dnsmsg.TypeA:
		return "A"
	case dnsmsg.TypeAAAA:
		return "AAAA"
	case dnsmsg.TypeCNAME:
		return "CNAME"
	case dnsmsg.TypeNS:
		return "NS"
	case dnsmsg.TypePTR:
		return "PTR"
	default:
		return fmt.Sprintf("TYPE%d", t)
	}
}

package dnsmsg

import "fmt"

// MaxQuestions and MaxRRPerSection cap the initial slice allocation driven
// by header counts, so a forged header claiming huge counts on a small
// packet can't force an oversized allocation before parsing fails.
const (
	MaxQuestions    = 64
	MaxRRPerSection = 4096
)

// Packet is a complete DNS message (RFC 1035 Section 4): a header and four
// record sections. It is the concrete WireMessage the routing engine
// operates on.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// ID returns the transaction ID.
func (p Packet) ID() uint16 { return p.Header.ID }

// Opcode returns the message opcode.
func (p Packet) Opcode() Opcode { return p.Header.Opcode() }

// RCode returns the response code.
func (p Packet) RCode() RCode { return p.Header.RCode() }

// QR reports whether this packet is a response.
func (p Packet) QR() bool { return p.Header.QR() }

// RD reports whether recursion was requested.
func (p Packet) RD() bool { return p.Header.RD() }

// HeaderMut returns a pointer to the header so callers can mutate the
// query/response framing fields in place (id, qr, opcode, rd, rcode).
func (p *Packet) HeaderMut() *Header { return &p.Header }

// Clone returns a shallow copy of the packet. Record and Question slices
// are never mutated in place by this codebase — actions replace state.resp
// wholesale — so sharing the backing arrays across the clone is safe.
func (p Packet) Clone() Packet {
	return Packet{
		Header:      p.Header,
		Questions:   p.Questions,
		Answers:     p.Answers,
		Authorities: p.Authorities,
		Additionals: p.Additionals,
	}
}

// Marshal serializes the packet to DNS wire format.
func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: uint16(len(p.Questions)),
		ANCount: uint16(len(p.Answers)),
		NSCount: uint16(len(p.Authorities)),
		ARCount: uint16(len(p.Additionals)),
	}

	estimatedSize := HeaderSize + len(p.Questions)*50 +
		(len(p.Answers)+len(p.Authorities)+len(p.Additionals))*64
	out := make([]byte, 0, estimatedSize)
	out = append(out, h.Marshal()...)

	for _, q := range p.Questions {
		qb, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, qb...)
	}
	for _, section := range [][]Record{p.Answers, p.Authorities, p.Additionals} {
		for _, rr := range section {
			b, err := marshalRecord(rr)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

// limitCount caps a header-declared section count to a sane upper bound so
// allocation sizing can't be driven by an attacker-controlled 16-bit field.
func limitCount(count uint16, limit int) int {
	if int(count) > limit {
		return limit
	}
	return int(count)
}

// ParsePacket decodes a complete DNS message from wire format.
func ParsePacket(msg []byte) (Packet, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h}

	p.Questions = make([]Question, 0, limitCount(h.QDCount, MaxQuestions))
	for range h.QDCount {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}

	for _, dst := range []struct {
		count uint16
		recs  *[]Record
	}{
		{h.ANCount, &p.Answers},
		{h.NSCount, &p.Authorities},
		{h.ARCount, &p.Additionals},
	} {
		*dst.recs = make([]Record, 0, limitCount(dst.count, MaxRRPerSection))
		for range dst.count {
			rr, err := ParseRecord(msg, &off)
			if err != nil {
				return Packet{}, fmt.Errorf("%w", err)
			}
			*dst.recs = append(*dst.recs, rr)
		}
	}
	return p, nil
}

// QName returns the name of the first question, or "" if there are none.
func (p Packet) QName() string {
	if len(p.Questions) == 0 {
		return ""
	}
	return p.Questions[0].Name
}

// MinAnswerTTL returns the smallest TTL among the answer records, and
// whether any answers were present at all.
func (p Packet) MinAnswerTTL() (uint32, bool) {
	if len(p.Answers) == 0 {
		return 0, false
	}
	min := p.Answers[0].Header().TTL
	for _, a := range p.Answers[1:] {
		if ttl := a.Header().TTL; ttl < min {
			min = ttl
		}
	}
	return min, true
}

package dnsmsg

import (
	"encoding/binary"
	"fmt"
	"net"
)

// RRHeader carries the fields common to every resource record, excluding
// the type-specific RDATA (RFC 1035 Section 4.1.3).
type RRHeader struct {
	Name  string
	Class uint16
	TTL   uint32
}

// Record is a DNS resource record. Each concrete type owns its RDATA shape;
// callers switch on Type() or type-assert when they need the payload.
type Record interface {
	Type() RecordType
	Header() RRHeader
	SetHeader(RRHeader)
	MarshalRData() ([]byte, error)
}

// marshalRecord serializes any Record to full wire format: NAME, TYPE,
// CLASS, TTL, RDLENGTH, RDATA.
func marshalRecord(r Record) ([]byte, error) {
	name, err := EncodeName(r.Header().Name)
	if err != nil {
		return nil, err
	}
	rdata, err := r.MarshalRData()
	if err != nil {
		return nil, err
	}
	h := r.Header()
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(r.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], h.Class)
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))

	out := make([]byte, 0, len(name)+len(fixed)+len(rdata))
	out = append(out, name...)
	out = append(out, fixed...)
	return append(out, rdata...), nil
}

// ParseRecord parses one resource record at msg[*off:], dispatching RDATA
// parsing by record type.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	start := *off
	if start+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	h := RRHeader{Name: NormalizeName(name), Class: rrClass, TTL: ttl}

	var rec Record
	switch rrType {
	case TypeA, TypeAAAA:
		rec, err = parseIPRData(msg, off, rdlen)
	case TypeCNAME, TypeNS, TypePTR:
		rec, err = parseNameRData(msg, off, start, rdlen, rrType)
	default:
		rec, err = parseOpaqueRData(msg, off, rdlen, rrType)
	}
	if err != nil {
		return nil, err
	}
	rec.SetHeader(h)
	return rec, nil
}

// IPRecord is an A or AAAA record (its Type is derived from the address family).
type IPRecord struct {
	H    RRHeader
	Addr net.IP
}

func NewIPRecord(h RRHeader, addr net.IP) *IPRecord { return &IPRecord{H: h, Addr: addr} }

func (r *IPRecord) Type() RecordType {
	if r.Addr.To4() != nil {
		return TypeA
	}
	return TypeAAAA
}

func (r *IPRecord) Header() RRHeader     { return r.H }
func (r *IPRecord) SetHeader(h RRHeader) { r.H = h }

func (r *IPRecord) MarshalRData() ([]byte, error) {
	if ip4 := r.Addr.To4(); ip4 != nil {
		return []byte(ip4), nil
	}
	if ip6 := r.Addr.To16(); ip6 != nil {
		return []byte(ip6), nil
	}
	return nil, fmt.Errorf("%w: invalid IP address", ErrDNSError)
}

func parseIPRData(msg []byte, off *int, rdlen int) (*IPRecord, error) {
	if rdlen != 4 && rdlen != 16 {
		return nil, fmt.Errorf("%w: A/AAAA record must be 4/16 bytes, got %d", ErrDNSError, rdlen)
	}
	if *off+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF reading IP record", ErrDNSError)
	}
	b := make([]byte, rdlen)
	copy(b, msg[*off:*off+rdlen])
	*off += rdlen
	return &IPRecord{Addr: net.IP(b)}, nil
}

// NameRecord covers record types whose RDATA is a single domain name
// (CNAME, NS, PTR).
type NameRecord struct {
	H      RRHeader
	T      RecordType
	Target string
}

func NewNameRecord(h RRHeader, rt RecordType, target string) *NameRecord {
	return &NameRecord{H: h, T: rt, Target: target}
}
func NewCNAMERecord(h RRHeader, target string) *NameRecord { return NewNameRecord(h, TypeCNAME, target) }
func NewNSRecord(h RRHeader, target string) *NameRecord     { return NewNameRecord(h, TypeNS, target) }
func NewPTRRecord(h RRHeader, target string) *NameRecord    { return NewNameRecord(h, TypePTR, target) }

func (r *NameRecord) Type() RecordType    { return r.T }
func (r *NameRecord) Header() RRHeader    { return r.H }
func (r *NameRecord) SetHeader(h RRHeader) { r.H = h }

func (r *NameRecord) MarshalRData() ([]byte, error) {
	return EncodeName(r.Target)
}

func parseNameRData(msg []byte, off *int, start, rdlen int, rt RecordType) (*NameRecord, error) {
	n, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off-start != rdlen {
		return nil, fmt.Errorf("%w: name record RDATA length mismatch", ErrDNSError)
	}
	return &NameRecord{Target: n, T: rt}, nil
}

// OpaqueRecord carries raw RDATA bytes for types this router does not
// interpret (TXT, MX, SOA, OPT, and anything unrecognized). The routing
// engine only needs TTLs and rcodes, never RDATA contents, so this is the
// common case for every type other than A/AAAA/CNAME/NS/PTR.
type OpaqueRecord struct {
	H    RRHeader
	T    RecordType
	Data []byte
}

func NewOpaqueRecord(h RRHeader, rt RecordType, data []byte) *OpaqueRecord {
	return &OpaqueRecord{H: h, T: rt, Data: data}
}

func (r *OpaqueRecord) Type() RecordType    { return r.T }
func (r *OpaqueRecord) Header() RRHeader    { return r.H }
func (r *OpaqueRecord) SetHeader(h RRHeader) { r.H = h }

func (r *OpaqueRecord) MarshalRData() ([]byte, error) {
	return r.Data, nil
}

func parseOpaqueRData(msg []byte, off *int, rdlen int, rt RecordType) (*OpaqueRecord, error) {
	if *off+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading opaque record rdata", ErrDNSError)
	}
	b := make([]byte, rdlen)
	copy(b, msg[*off:*off+rdlen])
	*off += rdlen
	return &OpaqueRecord{T: rt, Data: b}, nil
}

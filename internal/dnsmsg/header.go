package dnsmsg

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of a DNS header in bytes (RFC 1035 Section 4.1.1).
const HeaderSize = 12

// Header is the fixed 12-byte DNS message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Marshal serializes the header to wire format (big-endian, 12 bytes).
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(b[0:2], h.ID)
	binary.BigEndian.PutUint16(b[2:4], h.Flags)
	binary.BigEndian.PutUint16(b[4:6], h.QDCount)
	binary.BigEndian.PutUint16(b[6:8], h.ANCount)
	binary.BigEndian.PutUint16(b[8:10], h.NSCount)
	binary.BigEndian.PutUint16(b[10:12], h.ARCount)
	return b
}

// ParseHeader parses a DNS header from msg at *off, advancing *off by 12.
func ParseHeader(msg []byte, off *int) (Header, error) {
	if *off+HeaderSize > len(msg) {
		return Header{}, fmt.Errorf("%w: unexpected EOF while reading DNS header", ErrDNSError)
	}
	h := Header{
		ID:      binary.BigEndian.Uint16(msg[*off : *off+2]),
		Flags:   binary.BigEndian.Uint16(msg[*off+2 : *off+4]),
		QDCount: binary.BigEndian.Uint16(msg[*off+4 : *off+6]),
		ANCount: binary.BigEndian.Uint16(msg[*off+6 : *off+8]),
		NSCount: binary.BigEndian.Uint16(msg[*off+8 : *off+10]),
		ARCount: binary.BigEndian.Uint16(msg[*off+10 : *off+12]),
	}
	*off += HeaderSize
	return h, nil
}

// QR reports whether the QR (query/response) bit is set.
func (h Header) QR() bool { return h.Flags&qrFlag != 0 }

// Opcode extracts the opcode field.
func (h Header) Opcode() Opcode { return opcodeFromFlags(h.Flags) }

// RD reports whether the RD (recursion desired) bit is set.
func (h Header) RD() bool { return h.Flags&rdFlag != 0 }

// RCode extracts the response code field.
func (h Header) RCode() RCode { return rcodeFromFlags(h.Flags) }

// SetQR sets or clears the QR bit.
func (h *Header) SetQR(response bool) {
	if response {
		h.Flags |= qrFlag
	} else {
		h.Flags &^= qrFlag
	}
}

// SetOpcode sets the opcode field.
func (h *Header) SetOpcode(op Opcode) {
	h.Flags = (h.Flags &^ opcodeMask) | (uint16(op)<<opcodeShift)&opcodeMask
}

// SetRD sets or clears the RD bit.
func (h *Header) SetRD(rd bool) {
	if rd {
		h.Flags |= rdFlag
	} else {
		h.Flags &^= rdFlag
	}
}

// SetRCode sets the response code field.
func (h *Header) SetRCode(rc RCode) {
	h.Flags = (h.Flags &^ rcodeMask) | (uint16(rc) & rcodeMask)
}

// SetID sets the transaction ID.
func (h *Header) SetID(id uint16) { h.ID = id }

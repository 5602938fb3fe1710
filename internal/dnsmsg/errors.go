// Package dnsmsg implements the RFC 1035 DNS wire format: header, question,
// and resource record encoding/decoding, plus the Packet type the routing
// engine treats as its WireMessage contract.
//
// Type-Oriented Design:
//
// Each DNS record type is represented by an explicit Go type (IPRecord,
// NameRecord, OpaqueRecord) implementing the Record interface, rather than
// a single generic struct. This keeps DNS semantics explicit at the type
// level and mirrors how the rest of this codebase favors named types over
// generic containers.
//
// Error Handling:
//
// All parse/encode errors wrap ErrDNSError with fmt.Errorf("...: %w", ...)
// so callers can use errors.Is(err, dnsmsg.ErrDNSError) to distinguish wire
// errors from other failure classes.
package dnsmsg

import "errors"

// ErrDNSError is the sentinel wire-format error. Wrap it with additional
// context via fmt.Errorf("context: %w", ErrDNSError).
var ErrDNSError = errors.New("dns wire error")

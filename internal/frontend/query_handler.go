// Package frontend implements the DNS protocol servers for UDP and TCP
// that sit in front of the routing engine.
//
// Goroutine Model:
//
// The server spawns multiple goroutines for handling incoming queries:
//   - UDPServer: 1 receiver + N workers per CPU core
//   - TCPServer: 1 listener per CPU core + 1 handler per active connection
//
// All goroutines are coordinated through a shared context:
//   - Context is cancelled on shutdown signal (SIGINT/SIGTERM)
//   - All goroutines check context regularly and exit cleanly
//   - No long-lived blocking operations without context awareness
//
// Error Handling:
//
// Errors are wrapped with context using fmt.Errorf("...: %w", err) throughout.
// This preserves error chains while adding operational context.
package frontend

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"dnsrouter/internal/dnsmsg"
	"dnsrouter/internal/routeengine"
)

// QueryHandler parses an incoming message, routes it through the
// engine, and marshals the response back to wire format.
type QueryHandler struct {
	Logger  *slog.Logger        // Optional logger for debug output
	Engine  *routeengine.Engine // Routing engine the request is resolved against
	Timeout time.Duration       // Maximum time for query resolution (default: 4s)
	Stats   *DNSStats           // Optional counters surfaced by internal/adminapi
}

// HandleResult contains the outcome of query processing.
type HandleResult struct {
	ResponseBytes []byte       // Serialized DNS response
	Source        string       // Origin of response (resolved, timeout, error type)
	Parsed        dnsmsg.Packet // Parsed request (if ParsedOK is true)
	ParsedOK      bool         // Whether the request was successfully parsed
}

// Handle processes a DNS request and returns a response.
//
// Processing steps:
//  1. Parse the raw request bytes
//  2. Route through the engine with a timeout
//  3. Handle errors (parse, timeout) with FORMERR/SERVFAIL
//  4. Log request details at debug level
//
// The context is checked for cancellation (e.g., server shutdown).
func (h *QueryHandler) Handle(ctx context.Context, transport string, src netip.Addr, reqBytes []byte) HandleResult {
	start := time.Now()
	parsed, err := dnsmsg.ParsePacket(reqBytes)
	if err != nil {
		return h.handleParseError(reqBytes)
	}

	qname, qtype := extractQuestionInfo(parsed)

	result := h.resolveWithTimeout(ctx, parsed, src)

	h.logRequest(ctx, transport, src, parsed, qname, qtype, len(reqBytes), result.Source)
	h.recordStats(transport, result, time.Since(start))

	return HandleResult{
		ResponseBytes: result.ResponseBytes,
		Source:        result.Source,
		Parsed:        parsed,
		ParsedOK:      true,
	}
}

// handleParseError attempts to build an error response from a malformed request.
// Returns FORMERR if the header/question could be extracted, or nil if not.
func (h *QueryHandler) handleParseError(reqBytes []byte) HandleResult {
	resp := tryBuildErrorFromRaw(reqBytes, dnsmsg.RCodeFormErr)
	if resp == nil {
		return HandleResult{ResponseBytes: nil, Source: "parse-error", ParsedOK: false}
	}
	return HandleResult{ResponseBytes: resp, Source: "formerr", ParsedOK: false}
}

// extractQuestionInfo extracts the QNAME and QTYPE from a parsed request.
func extractQuestionInfo(parsed dnsmsg.Packet) (string, int) {
	qname := "<no-question>"
	qtype := -1
	if len(parsed.Questions) > 0 {
		qname = parsed.Questions[0].Name
		qtype = int(parsed.Questions[0].Type)
	}
	return qname, qtype
}

type resolveOutcome struct {
	ResponseBytes []byte
	Source        string
}

// resolveWithTimeout runs the routing engine with a timeout.
// Returns SERVFAIL on timeout, cancellation, or marshal error.
//
// Goroutine lifecycle: spawned per query, exits when the engine
// finishes, the context is cancelled, or the timeout fires. The
// channel is buffered so the goroutine never blocks trying to send to
// an abandoned receiver.
func (h *QueryHandler) resolveWithTimeout(ctx context.Context, parsed dnsmsg.Packet, src netip.Addr) resolveOutcome {
	resCh := make(chan dnsmsg.Packet, 1)
	go func() {
		resCh <- h.Engine.Resolve(ctx, parsed, routeengine.QueryContext{SrcIP: src})
	}()

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return h.buildErrorOutcome(parsed, "shutdown", dnsmsg.RCodeServFail)
	case <-timer.C:
		return h.buildErrorOutcome(parsed, "timeout", dnsmsg.RCodeServFail)
	case resp := <-resCh:
		b, err := resp.Marshal()
		if err != nil {
			return h.buildErrorOutcome(parsed, "marshal-error", dnsmsg.RCodeServFail)
		}
		return resolveOutcome{ResponseBytes: b, Source: "resolved"}
	}
}

// buildErrorOutcome builds an error response for a given parsed packet.
func (h *QueryHandler) buildErrorOutcome(parsed dnsmsg.Packet, source string, rcode dnsmsg.RCode) resolveOutcome {
	return resolveOutcome{
		ResponseBytes: mustMarshal(buildErrorResponse(parsed, rcode)),
		Source:        source,
	}
}

// logRequest logs DNS request details at debug level.
func (h *QueryHandler) logRequest(
	ctx context.Context,
	transport string,
	src netip.Addr,
	parsed dnsmsg.Packet,
	qname string,
	qtype int,
	reqLen int,
	source string,
) {
	if h.Logger == nil || !h.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	h.Logger.DebugContext(
		ctx,
		"dns request",
		"transport", transport,
		"src", src.String(),
		"id", int(parsed.Header.ID),
		"qname", qname,
		"qtype", qtype,
		"bytes", reqLen,
		"source", source,
	)
}

// recordStats updates the optional counters with the outcome of a query.
func (h *QueryHandler) recordStats(transport string, result resolveOutcome, latency time.Duration) {
	if h.Stats == nil {
		return
	}
	h.Stats.RecordQuery(transport)
	h.Stats.RecordLatency(latency.Nanoseconds())
	switch result.Source {
	case "timeout", "shutdown", "marshal-error":
		h.Stats.RecordError()
	case "resolved":
		if rcode := responseRCode(result.ResponseBytes); rcode == dnsmsg.RCodeNXDomain {
			h.Stats.RecordNXDOMAIN()
		} else if rcode == dnsmsg.RCodeServFail {
			h.Stats.RecordError()
		}
	}
}

// responseRCode extracts the RCODE from a marshaled response, returning
// RCodeServFail if the bytes can't be parsed back.
func responseRCode(b []byte) dnsmsg.RCode {
	p, err := dnsmsg.ParsePacket(b)
	if err != nil {
		return dnsmsg.RCodeServFail
	}
	return p.RCode()
}

// mustMarshal serializes a DNS packet, returning nil on error.
func mustMarshal(p dnsmsg.Packet) []byte {
	b, err := p.Marshal()
	if err != nil {
		return nil
	}
	return b
}

// buildErrorResponse builds a minimal error response echoing the
// query's id, opcode, and question section.
func buildErrorResponse(query dnsmsg.Packet, rcode dnsmsg.RCode) dnsmsg.Packet {
	resp := dnsmsg.Packet{Header: query.Header, Questions: query.Questions}
	h := resp.HeaderMut()
	h.SetQR(true)
	h.SetRCode(rcode)
	return resp
}

// tryBuildErrorFromRaw attempts to construct an error response from raw bytes.
// This is used when request parsing fails but we can still extract enough
// information (transaction ID, question) to build a valid error response.
//
// Returns nil if even the header cannot be parsed.
func tryBuildErrorFromRaw(reqBytes []byte, rcode dnsmsg.RCode) []byte {
	off := 0
	h, err := dnsmsg.ParseHeader(reqBytes, &off)
	if err != nil {
		return nil
	}

	var questions []dnsmsg.Question
	if h.QDCount > 0 {
		q, err := dnsmsg.ParseQuestion(reqBytes, &off)
		if err == nil {
			questions = []dnsmsg.Question{q}
		}
	}

	p := dnsmsg.Packet{Header: dnsmsg.Header{ID: h.ID, Flags: h.Flags}, Questions: questions}
	b, _ := buildErrorResponse(p, rcode).Marshal()
	return b
}

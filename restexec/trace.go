package restexec

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// interval is one timed step of a round trip.
type interval struct {
	start time.Time
	end   time.Time
}

func (iv interval) complete() bool {
	return !iv.start.IsZero() && !iv.end.IsZero()
}

func (iv interval) duration() time.Duration {
	return iv.end.Sub(iv.start)
}

// networkTrace collects connection timings of a single round trip, either
// the token exchange or the business request. Dial callbacks may fire on
// other goroutines, so every field is guarded by mu.
type networkTrace struct {
	mu sync.Mutex

	dns     interval
	connect interval
	tls     interval
	// ttfb runs from the last request byte written to the first response
	// byte read.
	ttfb interval

	dnsAddrs    []string
	tlsProtocol string

	gotConn    time.Time
	connReused bool
	connIdle   bool
	connRemote string
}

// step is one completed interval, rendered as a span event and, when
// record is set, a histogram sample. A step with a zero start is a point
// in time.
type step struct {
	event  string
	iv     interval
	attrs  []attribute.KeyValue
	record func(*metrics, context.Context, time.Duration, []attribute.KeyValue)
}

// stamp runs fn under the lock, passing the current time.
func (nt *networkTrace) stamp(fn func(now time.Time)) {
	now := time.Now()
	nt.mu.Lock()
	fn(now)
	nt.mu.Unlock()
}

// clientTrace returns the httptrace hooks that fill nt.
func (nt *networkTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			nt.stamp(func(now time.Time) { nt.dns.start = now })
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			nt.stamp(func(now time.Time) {
				nt.dns.end = now
				for _, addr := range info.Addrs {
					nt.dnsAddrs = append(nt.dnsAddrs, addr.String())
				}
			})
		},
		ConnectStart: func(_, _ string) {
			nt.stamp(func(now time.Time) { nt.connect.start = now })
		},
		ConnectDone: func(_, _ string, _ error) {
			nt.stamp(func(now time.Time) { nt.connect.end = now })
		},
		TLSHandshakeStart: func() {
			nt.stamp(func(now time.Time) { nt.tls.start = now })
		},
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			nt.stamp(func(now time.Time) {
				nt.tls.end = now
				nt.tlsProtocol = state.NegotiatedProtocol
			})
		},
		GotConn: func(info httptrace.GotConnInfo) {
			nt.stamp(func(now time.Time) {
				nt.gotConn = now
				nt.connReused = info.Reused
				nt.connIdle = info.WasIdle
				if info.Conn != nil && info.Conn.RemoteAddr() != nil {
					nt.connRemote = info.Conn.RemoteAddr().String()
				}
			})
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			nt.stamp(func(now time.Time) { nt.ttfb.start = now })
		},
		GotFirstResponseByte: func() {
			nt.stamp(func(now time.Time) { nt.ttfb.end = now })
		},
	}
}

// steps lists the completed steps in the order they happen. Callers
// hold mu.
func (nt *networkTrace) steps() []step {
	all := []step{
		{
			event:  "dns.done",
			iv:     nt.dns,
			attrs:  []attribute.KeyValue{attribute.StringSlice("dns.addresses", nt.dnsAddrs)},
			record: (*metrics).recordDNSDuration,
		},
		{event: "connect.done", iv: nt.connect, record: (*metrics).recordConnectionDuration},
		{
			event:  "tls.done",
			iv:     nt.tls,
			attrs:  []attribute.KeyValue{attribute.String("tls.protocol", nt.tlsProtocol)},
			record: (*metrics).recordTLSDuration,
		},
		{
			event: "got_conn",
			iv:    interval{end: nt.gotConn},
			attrs: []attribute.KeyValue{
				attribute.Bool("connection.reused", nt.connReused),
				attribute.Bool("connection.was_idle", nt.connIdle),
				attribute.String("network.peer.address", nt.connRemote),
			},
		},
		{event: "got_first_response_byte", iv: nt.ttfb, record: (*metrics).recordTTFB},
	}

	out := all[:0]
	for _, s := range all {
		if s.iv.end.IsZero() || (s.record != nil && !s.iv.complete()) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// addTraceEvents adds one span event per completed step.
func (nt *networkTrace) addTraceEvents(span trace.Span) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	for _, s := range nt.steps() {
		attrs := s.attrs
		if s.record != nil {
			attrs = append([]attribute.KeyValue{attribute.Float64("duration_ms", millis(s.iv.duration()))}, attrs...)
		}
		span.AddEvent(s.event, trace.WithTimestamp(s.iv.end), trace.WithAttributes(attrs...))
	}
}

// recordTimingMetrics records a histogram sample per completed interval.
func (nt *networkTrace) recordTimingMetrics(ctx context.Context, m *metrics, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}

	nt.mu.Lock()
	defer nt.mu.Unlock()

	for _, s := range nt.steps() {
		if s.record != nil {
			s.record(m, ctx, s.iv.duration(), attrs)
		}
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// errorTypeFromStatusCode returns error.type for a response status: the
// status code itself for 4xx and 5xx, empty otherwise.
func errorTypeFromStatusCode(statusCode int) string {
	if statusCode >= 400 {
		return strconv.Itoa(statusCode)
	}
	return ""
}

// setSpanError marks span as failed with err and an optional error.type.
func setSpanError(span trace.Span, err error, errorType string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errorType != "" {
		span.SetAttributes(attribute.String("error.type", errorType))
	}
}

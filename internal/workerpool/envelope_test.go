package workerpool

import (
	"context"
	"testing"
)

func TestRouteEnvelopeLogKindReachesLogger(t *testing.T) {
	p := &Pool{Name: "test-route"}
	// routeEnvelope logs through the package logger rather than returning
	// anything observable directly; this just exercises every Level branch
	// without panicking, since LogPayload.Level is an unconstrained string.
	for _, level := range []string{"error", "warn", "info", ""} {
		p.routeEnvelope(&Envelope{Kind: KindLog, Payload: LogPayload{Level: level, Message: "hello"}})
	}
}

func TestRouteEnvelopeUnknownKindIgnored(t *testing.T) {
	p := &Pool{Name: "test-route-unknown"}
	// Must not panic on a kind the pool doesn't recognize, and must not
	// panic on a payload type mismatch for a kind it does recognize.
	p.routeEnvelope(&Envelope{Kind: Kind("made_up"), Payload: "anything"})
	p.routeEnvelope(&Envelope{Kind: KindLog, Payload: "not a LogPayload"})
}

func TestSubmitTasksTravelAsEnvelopes(t *testing.T) {
	p := NewPool("test-envelope", 1)
	defer p.Shutdown(context.Background())

	_, future := p.Submit(Task{
		Run: func(ctx context.Context) (any, error) { return "ok", nil },
	})

	res := <-future
	if res.Value != "ok" || res.Err != nil {
		t.Errorf("unexpected result: %+v", res)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

type fakeResumer struct {
	calls []string
	err   error
}

func (f *fakeResumer) Resume(ctx context.Context, orderID string) error {
	f.calls = append(f.calls, orderID)
	return f.err
}

func TestHandle_ResumeMessage(t *testing.T) {
	r := &fakeResumer{}
	p := NewProcessor(slog.Default(), r)

	event := events.SQSEvent{Records: []events.SQSMessage{
		{Body: `{"kind":"resume","order_id":"order-1"}`},
		{Body: `{"kind":"resume","order_id":"order-2"}`},
	}}
	if err := p.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(r.calls) != 2 || r.calls[0] != "order-1" || r.calls[1] != "order-2" {
		t.Fatalf("unexpected resume calls: %v", r.calls)
	}
}

func TestHandle_ResumeErrorPropagatesForRetry(t *testing.T) {
	r := &fakeResumer{err: errors.New("dynamo unavailable")}
	p := NewProcessor(slog.Default(), r)

	event := events.SQSEvent{Records: []events.SQSMessage{
		{Body: `{"kind":"resume","order_id":"order-1"}`},
	}}
	if err := p.Handle(context.Background(), event); err == nil {
		t.Fatal("expected error so the message is redelivered")
	}
}

func TestHandle_CompensationFailedIsSwallowed(t *testing.T) {
	r := &fakeResumer{}
	p := NewProcessor(slog.Default(), r)

	event := events.SQSEvent{Records: []events.SQSMessage{
		{Body: `{"kind":"compensation_failed","order_id":"order-1","saga_id":"s1","step":"CHARGE_PAYMENT","error":"refund endpoint down"}`},
	}}
	if err := p.Handle(context.Background(), event); err != nil {
		t.Fatalf("compensation_failed must not be retried, got %v", err)
	}
	if len(r.calls) != 0 {
		t.Fatalf("compensation_failed must not resume, got %v", r.calls)
	}
}

func TestHandle_UnknownKindIsSwallowed(t *testing.T) {
	p := NewProcessor(slog.Default(), &fakeResumer{})

	event := events.SQSEvent{Records: []events.SQSMessage{
		{Body: `{"kind":"mystery","order_id":"order-1"}`},
	}}
	if err := p.Handle(context.Background(), event); err != nil {
		t.Fatalf("unknown kind must be dropped, got %v", err)
	}
}

func TestHandle_MalformedBody(t *testing.T) {
	p := NewProcessor(slog.Default(), &fakeResumer{})

	event := events.SQSEvent{Records: []events.SQSMessage{
		{Body: `not json`},
	}}
	if err := p.Handle(context.Background(), event); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

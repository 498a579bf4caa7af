package amqp

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"

	"ledger/internal/log"
)

type recordingAck struct {
	acks     int
	requeued int
	dropped  int
	err      error
}

func (a *recordingAck) Ack(uint64, bool) error {
	a.acks++
	return a.err
}

func (a *recordingAck) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		a.requeued++
	} else {
		a.dropped++
	}
	return a.err
}

func (a *recordingAck) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

const validBody = `{"kind":"record_added","username":"alice","index":0,"amount":-20,"budget":0,"remaining":0,"timestamp":"2024-01-01T00:00:00Z"}`

func TestSettle(t *testing.T) {
	failing := func(context.Context, *LedgerEventMessage) error { return errors.New("boom") }
	ok := func(context.Context, *LedgerEventMessage) error { return nil }

	tests := []struct {
		name     string
		delivery amqp091.Delivery
		handler  func(context.Context, *LedgerEventMessage) error
		want     Disposition
	}{
		{"handled", amqp091.Delivery{Body: []byte(validBody)}, ok, Acked},
		{"malformed", amqp091.Delivery{Body: []byte("{not json")}, ok, DeadLettered},
		{"first failure", amqp091.Delivery{Body: []byte(validBody)}, failing, Requeued},
		{"redelivered failure", amqp091.Delivery{Body: []byte(validBody), Redelivered: true}, failing, DeadLettered},
		{"quorum count below limit", amqp091.Delivery{Body: []byte(validBody), Redelivered: true, Headers: amqp091.Table{"x-delivery-count": int64(1)}}, failing, Requeued},
		{"quorum count at limit", amqp091.Delivery{Body: []byte(validBody), Redelivered: true, Headers: amqp091.Table{"x-delivery-count": int64(2)}}, failing, DeadLettered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &recordingAck{}
			tt.delivery.Acknowledger = ack
			if got := Settle(context.Background(), log.Discard(), tt.delivery, tt.handler); got != tt.want {
				t.Fatalf("Settle() = %v, want %v", got, tt.want)
			}
			settled := ack.acks + ack.requeued + ack.dropped
			if settled != 1 {
				t.Fatalf("delivery settled %d times, want once", settled)
			}
		})
	}
}

func TestSettleSurvivesAckError(t *testing.T) {
	ack := &recordingAck{err: errors.New("channel closed")}
	d := amqp091.Delivery{Body: []byte(validBody), Acknowledger: ack}
	if got := Settle(context.Background(), log.Discard(), d, func(context.Context, *LedgerEventMessage) error { return nil }); got != Acked {
		t.Fatalf("Settle() = %v, want Acked", got)
	}
}

package deadletter

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type stubInspector struct {
	status QueueStatus
	err    error
	calls  int
}

func (s *stubInspector) Status(context.Context) (QueueStatus, error) {
	s.calls++
	return s.status, s.err
}

func TestSelectMonitor(t *testing.T) {
	if _, ok := SelectMonitor(false, &stubInspector{}).(NoMonitor); !ok {
		t.Error("disabled monitor is not NoMonitor")
	}

	if _, ok := SelectMonitor(true, &stubInspector{}).(*PollingMonitor); !ok {
		t.Error("enabled monitor is not a PollingMonitor")
	}
}

func TestPollingMonitorCheck(t *testing.T) {
	inspector := &stubInspector{status: QueueStatus{Queue: "dlq_queue", Messages: 4}}

	var depth int
	m := NewPollingMonitor(inspector, WithDepthHook(func(n int) { depth = n }))

	status, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if status.Messages != 4 || depth != 4 {
		t.Errorf("messages = %d, depth = %d, want 4", status.Messages, depth)
	}

	inspector.err = errors.New("broker down")
	depth = -1

	if _, err = m.Check(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if depth != -1 {
		t.Error("depth hook called on failure")
	}
}

func TestPollingMonitorRejectsBadSchedule(t *testing.T) {
	m := NewPollingMonitor(&stubInspector{}, WithSchedule("every minute"))

	if err := m.Run(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestPollingMonitorRunStops(t *testing.T) {
	m := NewPollingMonitor(&stubInspector{}, WithSchedule("* * * * * *"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestNoMonitorRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (NoMonitor{}).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

type countingAcknowledger struct {
	acks int
}

func (a *countingAcknowledger) Ack(uint64, bool) error {
	a.acks++
	return nil
}

func (a *countingAcknowledger) Nack(uint64, bool, bool) error { return errors.New("unexpected nack") }

func (a *countingAcknowledger) Reject(uint64, bool) error { return errors.New("unexpected reject") }

func TestDrainerAcksUnconditionally(t *testing.T) {
	var seen []*Record

	d := NewDrainer(nil, WithRecordHook(func(r *Record) { seen = append(seen, r) }))

	ack := &countingAcknowledger{}
	b := newFakeBroker()

	good := deadLettered(t, b, "A1", "orders_queue")
	good.Acknowledger = ack

	bad := amqp.Delivery{Body: []byte("garbage"), Acknowledger: ack}

	for i, delivery := range []amqp.Delivery{good, bad} {
		if err := d.settle(&delivery, i); err != nil {
			t.Fatalf("settle: %v", err)
		}
	}

	if ack.acks != 2 {
		t.Errorf("acks = %d, want 2", ack.acks)
	}
	if len(seen) != 2 || seen[0].OrderID != "A1" {
		t.Errorf("records = %+v", seen)
	}
}

package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/testutil"
	"github.com/avellano/avellano-bot/internal/twiliowhatsapp"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	got   []models.InboundMessage
	hook  func(models.InboundMessage)
	err   error
	panic bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg models.InboundMessage) error {
	if d.hook != nil {
		d.hook(msg)
	}
	if d.panic {
		panic("flow exploded")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, msg)
	return d.err
}

func (d *recordingDispatcher) texts(from string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, m := range d.got {
		if m.From == from {
			out = append(out, m.Text)
		}
	}
	return out
}

func TestInbox_ProcessDeduplicates(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	d := &recordingDispatcher{}
	inbox := NewInbox(svc, d, WithDedup(st))
	ctx := context.Background()

	msg := models.InboundMessage{ID: "wamid.1", From: "+57 300 123 4567", Text: "hola"}
	for i := 0; i < 2; i++ {
		if err := inbox.Process(ctx, msg); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	if got := d.texts("573001234567"); len(got) != 1 {
		t.Errorf("expected one dispatch for a redelivered id, got %v", got)
	}

	// Messages without an id are never deduplicated.
	inbox.Process(ctx, models.InboundMessage{From: "573001234567", Text: "otra"})
	inbox.Process(ctx, models.InboundMessage{From: "573001234567", Text: "otra"})
	if got := d.texts("573001234567"); len(got) != 3 {
		t.Errorf("expected 3 dispatches, got %v", got)
	}
}

func TestInbox_ProcessErrors(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	ctx := context.Background()

	if err := NewInbox(svc, &recordingDispatcher{}).Process(ctx, models.InboundMessage{From: "12"}); err == nil {
		t.Error("expected invalid sender error")
	}

	boom := errors.New("boom")
	err := NewInbox(svc, &recordingDispatcher{err: boom}).Process(ctx, models.InboundMessage{From: "573001234567", Text: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("expected dispatch error, got %v", err)
	}

	err = NewInbox(svc, &recordingDispatcher{panic: true}).Process(ctx, models.InboundMessage{From: "573001234567", Text: "x"})
	if err == nil {
		t.Error("expected panic to surface as an error")
	}
}

func TestInbox_SerialPerUserConcurrentAcrossUsers(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	release := make(chan struct{})
	otherDone := make(chan struct{})
	d := &recordingDispatcher{}
	d.hook = func(m models.InboundMessage) {
		switch {
		case m.From == "573001111111" && m.Text == "1":
			<-release
		case m.From == "573002222222":
			close(otherDone)
		}
	}
	inbox := NewInbox(svc, d)
	ctx := context.Background()

	for _, text := range []string{"1", "2", "3"} {
		inbox.Enqueue(ctx, models.InboundMessage{From: "573001111111", Text: text})
	}
	inbox.Enqueue(ctx, models.InboundMessage{From: "573002222222", Text: "hola"})

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked user must not hold up other users")
	}
	if got := d.texts("573001111111"); len(got) != 0 {
		t.Errorf("later messages ran before the first finished: %v", got)
	}
	close(release)
	inbox.Wait()

	got := d.texts("573001111111")
	if len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Errorf("expected in-order dispatch, got %v", got)
	}
}

func TestInbox_StartConsumesResponses(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	d := &recordingDispatcher{}
	inbox := NewInbox(svc, d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbox.Start(ctx)

	svc.emit(models.InboundMessage{ID: "SM1", From: "573001234567", Text: "menu"})
	deadline := time.Now().Add(2 * time.Second)
	for len(d.texts("573001234567")) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	inbox.Wait()
	if got := d.texts("573001234567"); len(got) != 1 || got[0] != "menu" {
		t.Errorf("expected dispatched message, got %v", got)
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

type fakeSender struct {
	name string
	err  error

	mu    sync.Mutex
	sent  int
	title string
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	f.title = title
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, []string{EventResolved}, discard())

	if err := n.Notify(context.Background(), EventFailed, "t", "m"); err != nil {
		t.Fatalf("filtered notify: %v", err)
	}
	if s.sent != 0 {
		t.Errorf("filtered event was delivered %d times", s.sent)
	}

	if err := n.Notify(context.Background(), EventResolved, "t", "m"); err != nil {
		t.Fatalf("allowed notify: %v", err)
	}
	if s.sent != 1 {
		t.Errorf("allowed event delivered %d times, want 1", s.sent)
	}
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	s := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{s}, nil, discard())

	for _, event := range []string{EventResolved, EventFailed, EventGasDeferred} {
		if err := n.Notify(context.Background(), event, "t", "m"); err != nil {
			t.Fatalf("notify %s: %v", event, err)
		}
	}
	if s.sent != 3 {
		t.Errorf("delivered %d notifications, want 3", s.sent)
	}
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &fakeSender{name: "telegram", err: errors.New("telegram: send: 429")}
	good := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("expected combined error from failed sender")
	}
	if !strings.Contains(err.Error(), "telegram") {
		t.Errorf("error does not name failed sender: %v", err)
	}
	if good.sent != 1 {
		t.Errorf("healthy sender delivered %d times, want 1", good.sent)
	}
}

func TestResolutionFailedRoutesGasDeferral(t *testing.T) {
	s := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, []string{EventGasDeferred}, discard())

	n.ResolutionFailed(context.Background(), "mkt-1", errors.New("openai: timeout"))
	if s.sent != 0 {
		t.Errorf("generic failure delivered despite filter, sent=%d", s.sent)
	}

	gasErr := &domain.StageError{
		Stage: domain.StageGasGate,
		Err:   fmt.Errorf("gas 95000000000 wei above ceiling 10000000000: %w", domain.ErrGasTooHigh),
	}
	n.ResolutionFailed(context.Background(), "mkt-1", gasErr)
	if s.sent != 1 {
		t.Fatalf("gas deferral delivered %d times, want 1", s.sent)
	}
	if !strings.Contains(s.title, "deferred") {
		t.Errorf("title = %q, want deferral wording", s.title)
	}
}

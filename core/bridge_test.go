package core

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lisuiheng/rfid-bridge/possim"
	"github.com/lisuiheng/rfid-bridge/protocols/envelope"
)

func startPOS(t *testing.T) (*possim.Server, string) {
	t.Helper()
	sim := possim.NewServer(nil, testLogger())
	srv := httptest.NewServer(sim.Router())
	t.Cleanup(srv.Close)
	return sim, "ws" + strings.TrimPrefix(srv.URL, "http") + possim.PathPOS
}

func bridgeConfig(endpoint string) Config {
	var cfg Config
	cfg.System.ClientID = "bridge-test"
	cfg.Peer = PeerConfig{
		WindowName:  DefaultWindowName,
		Windows:     map[string]string{DefaultWindowName: endpoint},
		DialTimeout: time.Second,
	}
	cfg.Retry = DefaultRetryConfig()
	cfg.Notify.Backend = "console"
	return cfg
}

func waitResponse(t *testing.T, ch <-chan envelope.Response) envelope.Response {
	t.Helper()
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for POS response")
	}
	return envelope.Response{}
}

func TestBridgeEndToEnd(t *testing.T) {
	sim, endpoint := startPOS(t)
	notifier := &countingNotifier{}
	responses := make(chan envelope.Response, 8)

	cfg := bridgeConfig(endpoint)
	cfg.Retry.RevalidateOnSendFailure = true
	sched := &manualScheduler{}
	b, err := NewBridge(cfg, Deps{
		Scheduler: sched,
		Notifier:  notifier,
		Handler:   func(resp envelope.Response) { responses <- resp },
	}, testLogger())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	defer b.Close()

	b.Start(context.Background())
	if st := b.Status(); st.State != StateConnected || st.Peer != endpoint {
		t.Fatalf("expected connected to %s, got %+v", endpoint, st)
	}

	b.Scan("milk")
	if resp := waitResponse(t, responses); !resp.Success {
		t.Fatalf("expected success for milk, got %+v", resp)
	}

	b.Scan("caviar")
	resp := waitResponse(t, responses)
	if resp.Success || !strings.Contains(resp.Error, "caviar") {
		t.Fatalf("expected failure naming caviar, got %+v", resp)
	}
	if notifier.count() != 0 {
		t.Fatalf("fallback must not run while connected")
	}

	scans := sim.Scans()
	if len(scans) != 2 || scans[0].ClientID != "bridge-test" {
		t.Fatalf("unexpected scans at POS %+v", scans)
	}

	// POS 关闭后，扫描走回退提示并重新查找
	deadline := time.Now().Add(2 * time.Second)
	for {
		sim.DropAll()
		if p := b.supervisor.Peer(); p == nil || p.Closed() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer never observed POS shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.Scan("bread")
	if notifier.count() != 1 {
		t.Fatalf("expected one fallback after POS closed, got %d", notifier.count())
	}
	if st := b.Status(); st.State != StateDisconnected {
		t.Fatalf("expected disconnected after failed delivery, got %+v", st)
	}

	sched.task(t, 0).fire()
	if st := b.Status(); st.State != StateConnected {
		t.Fatalf("expected reconnection, got %+v", st)
	}
}

func TestBridgeStandaloneWhenNoPOS(t *testing.T) {
	notifier := &countingNotifier{}
	cfg := bridgeConfig("ws://127.0.0.1:1/pos")
	cfg.Retry.MaxRetries = 1

	b, err := NewBridge(cfg, Deps{Scheduler: &manualScheduler{}, Notifier: notifier}, testLogger())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	defer b.Close()

	b.Start(context.Background())
	if b.Status().State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", b.Status().State)
	}

	b.Scan("apples")
	b.Scan("unknown")
	if notifier.count() != 2 {
		t.Fatalf("expected two fallback notifications, got %d", notifier.count())
	}
}

type sliceSource struct {
	tags []string
	err  error
}

func (s *sliceSource) Read(ctx context.Context, out chan<- string) error {
	for _, tag := range s.tags {
		select {
		case out <- tag:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func TestBridgeRunDrainsSource(t *testing.T) {
	notifier := &countingNotifier{}
	locator := &scriptedLocator{}
	b, err := NewBridge(bridgeConfig(""), Deps{
		Locator:   locator,
		Scheduler: &manualScheduler{},
		Notifier:  notifier,
	}, testLogger())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	defer b.Close()

	if err := b.Run(context.Background(), &sliceSource{tags: []string{"milk", "eggs", "rice"}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if notifier.count() != 3 {
		t.Fatalf("expected three standalone scans, got %d", notifier.count())
	}
	if locator.callCount() != 1 {
		t.Fatalf("expected one initial locate, got %d", locator.callCount())
	}
}

func TestBridgeRunReportsSourceError(t *testing.T) {
	b, err := NewBridge(bridgeConfig(""), Deps{
		Locator:   &scriptedLocator{},
		Scheduler: &manualScheduler{},
		Notifier:  &countingNotifier{},
	}, testLogger())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	defer b.Close()

	err = b.Run(context.Background(), &sliceSource{err: errBoom})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestBridgeCloseIsIdempotent(t *testing.T) {
	b, err := NewBridge(bridgeConfig(""), Deps{
		Locator:   &scriptedLocator{},
		Scheduler: &manualScheduler{},
		Notifier:  &countingNotifier{},
	}, testLogger())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	b.Start(context.Background())

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	b.Scan("milk")
}

func TestBridgeRunAfterCloseReturnsErrBridgeClosed(t *testing.T) {
	locator := &scriptedLocator{}
	b, err := NewBridge(bridgeConfig(""), Deps{
		Locator:   locator,
		Scheduler: &manualScheduler{},
		Notifier:  &countingNotifier{},
	}, testLogger())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	_ = b.Close()

	err = b.Run(context.Background(), &sliceSource{tags: []string{"milk"}})
	if !errors.Is(err, ErrBridgeClosed) {
		t.Fatalf("expected ErrBridgeClosed, got %v", err)
	}
	if locator.callCount() != 0 {
		t.Fatalf("expected no locate on closed bridge, got %d", locator.callCount())
	}
}

func TestNewBridgeRequiresLogger(t *testing.T) {
	if _, err := NewBridge(Config{}, Deps{}, nil); err == nil {
		t.Fatalf("expected error without logger")
	}
	cfg := bridgeConfig("")
	cfg.Notify.Backend = "pager"
	if _, err := NewBridge(cfg, Deps{Locator: &scriptedLocator{}}, testLogger()); err == nil {
		t.Fatalf("expected error for unknown notify backend")
	}
}

package reader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
)

func collect(t *testing.T, read func(ctx context.Context, out chan<- string) error) ([]string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := make(chan string, 32)
	err := read(ctx, out)
	close(out)

	var got []string
	for tag := range out {
		got = append(got, tag)
	}
	return got, err
}

func TestLineSourceSplitsAndSkips(t *testing.T) {
	input := "milk\r\n\n  bread  \r# comment\neggs"
	got, err := collect(t, NewLineSource(strings.NewReader(input)).Read)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	want := []string{"milk", "bread", "eggs"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLineSourceStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan string)
	done := make(chan error, 1)
	go func() {
		done <- NewLineSource(pr).Read(ctx, out)
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("line source did not stop after cancel")
	}
}

type fakePort struct {
	serial.Port

	mu      sync.Mutex
	data    []byte
	closed  bool
	timeout time.Duration
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.data) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.timeout = d
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestSerialSourceReadsTags(t *testing.T) {
	port := &fakePort{data: []byte("apples\rcheese\r")}
	src := NewSerialSource("/dev/ttyUSB0", 9600, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var gotMode *serial.Mode
	src.open = func(name string, mode *serial.Mode) (serial.Port, error) {
		gotMode = mode
		return port, nil
	}

	got, err := collect(t, src.Read)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Join(got, ",") != "apples,cheese" {
		t.Fatalf("unexpected tags %v", got)
	}
	if gotMode == nil || gotMode.BaudRate != 9600 {
		t.Fatalf("unexpected serial mode %+v", gotMode)
	}
	if port.timeout != defaultSerialReadTimeout {
		t.Fatalf("expected read timeout to be set, got %s", port.timeout)
	}
	if !port.closed {
		t.Fatalf("expected port to be closed")
	}
}

func TestSerialSourceValidatesConfig(t *testing.T) {
	if _, err := collect(t, NewSerialSource("", 9600, nil).Read); err == nil {
		t.Fatalf("expected error for empty port")
	}
	if _, err := collect(t, NewSerialSource("/dev/ttyUSB0", 0, nil).Read); err == nil {
		t.Fatalf("expected error for invalid baud rate")
	}

	src := NewSerialSource("/dev/ttyUSB0", 9600, nil)
	src.open = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such device")
	}
	if _, err := collect(t, src.Read); err == nil || !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("expected open error, got %v", err)
	}
}

package transport

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

// stubTransport records calls. When releaseSend is set, the first Send
// signals enteredSend and every Send blocks until releaseSend is closed,
// which lets tests fill the async queue deterministically.
type stubTransport struct {
	mu        sync.Mutex
	sent      [][]byte
	maintains int
	closed    bool

	ack byte

	enteredSend chan struct{}
	releaseSend chan struct{}
	blockOnce   sync.Once
}

func (s *stubTransport) Maintain() {
	s.mu.Lock()
	s.maintains++
	s.mu.Unlock()
}

func (s *stubTransport) Send(p []byte) error {
	if s.releaseSend != nil {
		s.blockOnce.Do(func() { s.enteredSend <- struct{}{} })
		<-s.releaseSend
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	s.mu.Lock()
	s.sent = append(s.sent, cp)
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) PollAck() byte { return s.ack }
func (s *stubTransport) State() State  { return StateConnected }

func (s *stubTransport) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *stubTransport) sentFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *stubTransport) maintainCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maintains
}

// blockedAsyncWriter builds an asyncWriter whose inner transport is stalled
// inside its first Send, with the given queue configuration.
func blockedAsyncWriter(t *testing.T, size int, policy DropPolicy) (*asyncWriter, *stubTransport) {
	t.Helper()
	stub := &stubTransport{
		enteredSend: make(chan struct{}),
		releaseSend: make(chan struct{}),
	}
	a := newAsyncWriter(stub, testConfig().WithQueue(size, policy))
	t.Cleanup(func() { _ = a.Close() })

	if err := a.Send([]byte{0}); err != nil {
		t.Fatalf("Send() of the first frame: %v", err)
	}
	select {
	case <-stub.enteredSend:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for the writer goroutine to pick up a frame")
	}
	return a, stub
}

func TestAsyncWriter_DropNewestRejectsOverflow(t *testing.T) {
	a, stub := blockedAsyncWriter(t, 2, DropNewest)

	// Frame 0 is stalled inside the inner Send; 1 and 2 fill the queue.
	if err := a.Send([]byte{1}); err != nil {
		t.Fatalf("Send() into queue: %v", err)
	}
	if err := a.Send([]byte{2}); err != nil {
		t.Fatalf("Send() into queue: %v", err)
	}

	if err := a.Send([]byte{3}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Send() on full queue = %v, want ErrQueueFull", err)
	}
	if got := a.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}

	close(stub.releaseSend)
	waitFor(t, 2*time.Second, func() bool { return stub.sentCount() == 3 },
		"queued frames never drained")

	want := [][]byte{{0}, {1}, {2}}
	got := stub.sentFrames()
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("sent[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAsyncWriter_DropOldestEvicts(t *testing.T) {
	a, stub := blockedAsyncWriter(t, 2, DropOldest)

	if err := a.Send([]byte{1}); err != nil {
		t.Fatalf("Send() into queue: %v", err)
	}
	if err := a.Send([]byte{2}); err != nil {
		t.Fatalf("Send() into queue: %v", err)
	}

	// Overflow evicts frame 1, the oldest still queued.
	if err := a.Send([]byte{3}); err != nil {
		t.Fatalf("Send() with DropOldest = %v, want nil", err)
	}
	if got := a.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}

	close(stub.releaseSend)
	waitFor(t, 2*time.Second, func() bool { return stub.sentCount() == 3 },
		"queued frames never drained")

	want := [][]byte{{0}, {2}, {3}}
	got := stub.sentFrames()
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("sent[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAsyncWriter_SendCopiesPayload(t *testing.T) {
	stub := &stubTransport{}
	a := newAsyncWriter(stub, testConfig().WithQueue(4, DropNewest))
	t.Cleanup(func() { _ = a.Close() })

	payload := []byte{1, 2, 3}
	if err := a.Send(payload); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	payload[0] = 99

	waitFor(t, 2*time.Second, func() bool { return stub.sentCount() == 1 },
		"frame never reached the inner transport")
	if got := stub.sentFrames()[0]; !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("inner transport saw %v, want [1 2 3]", got)
	}
}

func TestAsyncWriter_MaintainRunsOffCaller(t *testing.T) {
	stub := &stubTransport{}
	a := newAsyncWriter(stub, testConfig().WithQueue(4, DropNewest))
	t.Cleanup(func() { _ = a.Close() })

	a.Maintain()
	waitFor(t, 2*time.Second, func() bool { return stub.maintainCount() >= 1 },
		"maintenance never reached the inner transport")
}

func TestAsyncWriter_DelegatesPollAckAndState(t *testing.T) {
	stub := &stubTransport{ack: 7}
	a := newAsyncWriter(stub, testConfig().WithQueue(4, DropNewest))
	t.Cleanup(func() { _ = a.Close() })

	if got := a.PollAck(); got != 7 {
		t.Fatalf("PollAck() = %d, want 7", got)
	}
	if got := a.State(); got != StateConnected {
		t.Fatalf("State() = %v, want %v", got, StateConnected)
	}
}

func TestAsyncWriter_Close(t *testing.T) {
	stub := &stubTransport{}
	a := newAsyncWriter(stub, testConfig().WithQueue(4, DropNewest))

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	stub.mu.Lock()
	closed := stub.closed
	stub.mu.Unlock()
	if !closed {
		t.Fatal("Close() did not close the inner transport")
	}

	if err := a.Send([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send() after Close = %v, want ErrClosed", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}

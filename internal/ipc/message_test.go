package ipc_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rost-kernel/rost/internal/ipc"
)

func TestSendRecvOrder(t *testing.T) {
	q := ipc.NewQueue()

	if err := q.Send(1, []byte("first")); err != nil {
		t.Fatalf("send: %s", err)
	}

	if err := q.Send(1, []byte("second")); err != nil {
		t.Fatalf("send: %s", err)
	}

	msg, ok := q.Recv(0)
	if !ok {
		t.Fatalf("recv: no message")
	}

	if got := msg.Data[:msg.DataLen]; !bytes.Equal(got, []byte("first")) {
		t.Errorf("first recv = %q, want %q", got, "first")
	}

	msg, ok = q.Recv(0)
	if !ok || !bytes.Equal(msg.Data[:msg.DataLen], []byte("second")) {
		t.Errorf("second recv = %q, ok=%v, want %q", msg.Data[:msg.DataLen], ok, "second")
	}
}

func TestRecvNonBlockingEmpty(t *testing.T) {
	q := ipc.NewQueue()

	if _, ok := q.Recv(0); ok {
		t.Errorf("Recv(0) on empty queue returned ok=true")
	}
}

func TestSendQueueFull(t *testing.T) {
	q := ipc.NewQueue()

	for i := 0; i < ipc.Capacity; i++ {
		if err := q.Send(1, []byte("x")); err != nil {
			t.Fatalf("send %d: %s", i, err)
		}
	}

	if err := q.Send(1, []byte("overflow")); !errors.Is(err, ipc.ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
}

func TestSendPayloadTooLarge(t *testing.T) {
	q := ipc.NewQueue()

	big := make([]byte, ipc.MaxPayload+1)
	if err := q.Send(1, big); !errors.Is(err, ipc.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRecvBlocksUntilSend(t *testing.T) {
	q := ipc.NewQueue()

	done := make(chan ipc.Message, 1)

	go func() {
		msg, ok := q.Recv(time.Second)
		if ok {
			done <- msg
		} else {
			close(done)
		}
	}()

	time.Sleep(20 * time.Millisecond)

	if err := q.Send(7, []byte("hi")); err != nil {
		t.Fatalf("send: %s", err)
	}

	select {
	case msg, ok := <-done:
		if !ok {
			t.Fatalf("recv timed out instead of waking on send")
		}

		if msg.SenderPID != 7 {
			t.Errorf("SenderPID = %d, want 7", msg.SenderPID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("recv never returned")
	}
}

func TestRecvTimesOut(t *testing.T) {
	q := ipc.NewQueue()

	start := time.Now()

	_, ok := q.Recv(30 * time.Millisecond)
	if ok {
		t.Errorf("Recv returned ok=true on an empty, never-sent-to queue")
	}

	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Recv returned after %s, want >= 30ms", elapsed)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg := ipc.Message{SenderPID: 3, DataLen: 5}
	copy(msg.Data[:], "hello")

	bin, err := msg.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}

	var got ipc.Message
	if err := got.UnmarshalBinary(bin); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}

	if got != msg {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

package relay

import (
	"fmt"
	"testing"
	"time"
)

func TestSendEmptyBodyRejectedBeforeLookup(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger(), time.Minute, nil)
	rt := NewRouter(testLogger(), reg, nil)

	// Even a bogus token must not matter: the empty body wins.
	for _, body := range []string{"", "   ", "\n"} {
		if err := rt.Send("bogus-token", "nobody", body); err != ErrEmptyBody {
			t.Fatalf("Send(body=%q): expected ErrEmptyBody, got %v", body, err)
		}
	}
}

func TestSendUnknownToken(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger(), time.Minute, nil)
	rt := NewRouter(testLogger(), reg, nil)

	if err := rt.Send("bogus-token", "nobody", "hi"); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSendRecipientOffline(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger(), time.Minute, nil)
	rt := NewRouter(testLogger(), reg, nil)

	alice, err := reg.Reserve("alice")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// bob never reserved.
	if err := rt.Send(alice.Token, "bob", "hi"); err != ErrRecipientOffline {
		t.Fatalf("expected ErrRecipientOffline, got %v", err)
	}

	// bob reserved but no connection bound.
	if _, err := reg.Reserve("bob"); err != nil {
		t.Fatalf("reserve bob: %v", err)
	}
	if err := rt.Send(alice.Token, "bob", "hi"); err != ErrRecipientOffline {
		t.Fatalf("expected ErrRecipientOffline for unbound recipient, got %v", err)
	}
}

func TestSendDeliversToRecipientQueue(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger(), time.Minute, nil)
	rt := NewRouter(testLogger(), reg, nil)

	alice, err := reg.Reserve("Alice")
	if err != nil {
		t.Fatalf("reserve alice: %v", err)
	}
	bob, err := reg.Reserve("bob")
	if err != nil {
		t.Fatalf("reserve bob: %v", err)
	}

	bobConn := NewConn("c-bob", bob.Name, 8)
	if _, err := reg.Register(bob.Token, bobConn); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	if err := rt.Send(alice.Token, "bob", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case msg := <-bobConn.Send:
		if msg.From != "Alice" || msg.Body != "hi" {
			t.Fatalf("delivered %+v, want from=Alice body=hi", msg)
		}
	default:
		t.Fatalf("no message on recipient queue")
	}

	// No second push anywhere.
	select {
	case msg := <-bobConn.Send:
		t.Fatalf("unexpected extra message: %+v", msg)
	default:
	}
}

func TestSendOrderingPreserved(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger(), time.Minute, nil)
	rt := NewRouter(testLogger(), reg, nil)

	alice, _ := reg.Reserve("alice")
	bob, _ := reg.Reserve("bob")

	bobConn := NewConn("c-bob", bob.Name, 128)
	if _, err := reg.Register(bob.Token, bobConn); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	const n = 100
	for i := 0; i < n; i++ {
		if err := rt.Send(alice.Token, "bob", fmt.Sprintf("msg-%03d", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case msg := <-bobConn.Send:
			want := fmt.Sprintf("msg-%03d", i)
			if msg.Body != want {
				t.Fatalf("reordered at %d: got=%q want=%q", i, msg.Body, want)
			}
		default:
			t.Fatalf("queue drained early at %d", i)
		}
	}
}

func TestSendFullQueueReportsOffline(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger(), time.Minute, nil)
	rt := NewRouter(testLogger(), reg, nil)

	alice, _ := reg.Reserve("alice")
	bob, _ := reg.Reserve("bob")

	// Queue below the constructor floor on purpose: bypass NewConn.
	bobConn := &Conn{ID: "c-bob", Name: "bob", Send: make(chan Message, 1), done: make(chan struct{})}
	if _, err := reg.Register(bob.Token, bobConn); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	if err := rt.Send(alice.Token, "bob", "first"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := rt.Send(alice.Token, "bob", "second"); err != ErrRecipientOffline {
		t.Fatalf("expected ErrRecipientOffline on full queue, got %v", err)
	}
}

func TestSendToClosedConnReportsOffline(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger(), time.Minute, nil)
	rt := NewRouter(testLogger(), reg, nil)

	alice, _ := reg.Reserve("alice")
	bob, _ := reg.Reserve("bob")

	bobConn := NewConn("c-bob", bob.Name, 8)
	if _, err := reg.Register(bob.Token, bobConn); err != nil {
		t.Fatalf("register bob: %v", err)
	}
	bobConn.Close(ReasonPeerClosed)

	if err := rt.Send(alice.Token, "bob", "hi"); err != ErrRecipientOffline {
		t.Fatalf("expected ErrRecipientOffline for closed conn, got %v", err)
	}
}

// The concrete scenario from the relay contract: two registrations, one
// delivery, then an offline failure after the recipient unregisters.
func TestSendScenarioAliceToBob(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger(), 0, nil)
	rt := NewRouter(testLogger(), reg, nil)

	alice, err := reg.Reserve("alice")
	if err != nil {
		t.Fatalf("reserve alice: %v", err)
	}
	bob, err := reg.Reserve("bob")
	if err != nil {
		t.Fatalf("reserve bob: %v", err)
	}

	aliceConn := NewConn("c-alice", alice.Name, 8)
	bobConn := NewConn("c-bob", bob.Name, 8)
	if _, err := reg.Register(alice.Token, aliceConn); err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, err := reg.Register(bob.Token, bobConn); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	if err := rt.Send(alice.Token, "bob", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := <-bobConn.Send
	if msg.From != "alice" || msg.Body != "hi" {
		t.Fatalf("delivered %+v", msg)
	}

	reg.Unregister("bob", bobConn)
	if err := rt.Send(alice.Token, "bob", "hi2"); err != ErrRecipientOffline {
		t.Fatalf("expected ErrRecipientOffline after unregister, got %v", err)
	}
}

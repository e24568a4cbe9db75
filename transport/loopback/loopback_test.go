package loopback

import "testing"

func TestRoundTrip(t *testing.T) {
	pair := New()

	go func() {
		pair.Device.WriteAll([]byte("pong"))
	}()

	pair.Host.WriteAll([]byte("ping"))

	buf := make([]byte, 4)
	if err := pair.Device.ReadExact(buf); err != nil {
		t.Fatalf("device read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q, want ping", buf)
	}

	if err := pair.Host.ReadExact(buf); err != nil {
		t.Fatalf("host read: %v", err)
	}
	if string(buf) != "pong" {
		t.Fatalf("got %q, want pong", buf)
	}
}

func TestInitCountsCalls(t *testing.T) {
	pair := New()
	if pair.Device.InitCalls() != 0 {
		t.Fatalf("InitCalls() = %d, want 0", pair.Device.InitCalls())
	}
	pair.Device.Init()
	pair.Device.Init()
	if pair.Device.InitCalls() != 2 {
		t.Fatalf("InitCalls() = %d, want 2", pair.Device.InitCalls())
	}
}

func TestCloseUnblocksRead(t *testing.T) {
	pair := New()
	done := make(chan error, 1)
	go func() {
		done <- pair.Host.ReadExact(make([]byte, 1))
	}()
	pair.Host.Close()
	if err := <-done; err == nil {
		t.Fatal("ReadExact returned nil error after Close")
	}
}

package websocket

import (
	"testing"
	"time"
)

func TestClientRegistration(t *testing.T) {
	store := newFakeStore()
	hub := createTestHub(store)

	client := createTestClient(hub, "user-1")

	if !hub.clients[client] {
		t.Error("client not tracked in the clients map")
	}
	if hub.connections[client.id] != client {
		t.Error("client not reachable by connection id")
	}
	if !hub.userClients["user-1"][client] {
		t.Error("client not tracked in the per-user set")
	}
}

func TestClientUnregistration(t *testing.T) {
	t.Run("removes the device and notifies survivors", func(t *testing.T) {
		store := newFakeStore()
		hub := createTestHub(store)
		leaving := createTestClient(hub, "user-1")
		staying := createTestClient(hub, "user-1")

		registerDevice(hub, leaving, "Phone", "mobile")
		registerDevice(hub, staying, "Laptop", "desktop")
		drainMessages(staying)

		hub.unregisterClient(leaving)

		if hub.connections[leaving.id] != nil {
			t.Error("connection still reachable after unregister")
		}
		devices, err := store.ListDevices(hub.ctx, "user-1")
		if err != nil {
			t.Fatalf("failed to list devices: %v", err)
		}
		if len(devices) != 1 {
			t.Errorf("device set has %d entries after disconnect, want 1", len(devices))
		}
		if hasMessage(drainMessages(staying), MessageTypeDeviceListUpdated) == nil {
			t.Error("surviving connection did not receive a device list update")
		}
	})

	t.Run("active pointer survives the active device disconnecting", func(t *testing.T) {
		store := newFakeStore()
		hub := createTestHub(store)
		active := createTestClient(hub, "user-1")
		other := createTestClient(hub, "user-1")

		activeID := registerDevice(hub, active, "Phone", "mobile")
		registerDevice(hub, other, "Laptop", "desktop")

		hub.unregisterClient(active)

		// No failover: the pointer keeps referencing the vanished device
		// until an explicit select.
		if got := store.activeDevice("user-1"); got != activeID {
			t.Errorf("active pointer = %q after disconnect, want %q", got, activeID)
		}
	})

	t.Run("unregister is idempotent", func(t *testing.T) {
		store := newFakeStore()
		hub := createTestHub(store)
		client := createTestClient(hub, "user-1")
		registerDevice(hub, client, "Phone", "mobile")

		hub.unregisterClient(client)
		hub.unregisterClient(client)
	})

	t.Run("unregister before device registration removes nothing", func(t *testing.T) {
		store := newFakeStore()
		hub := createTestHub(store)
		client := createTestClient(hub, "user-1")

		hub.unregisterClient(client)

		devices, err := store.ListDevices(hub.ctx, "user-1")
		if err != nil {
			t.Fatalf("failed to list devices: %v", err)
		}
		if len(devices) != 0 {
			t.Errorf("device set has %d entries, want 0", len(devices))
		}
	})
}

func TestPushToUser(t *testing.T) {
	t.Run("fans out to every connection of the user", func(t *testing.T) {
		store := newFakeStore()
		hub := createTestHub(store)
		first := createTestClient(hub, "user-1")
		second := createTestClient(hub, "user-1")
		stranger := createTestClient(hub, "user-2")

		hub.pushToUser("user-1", NewActiveDeviceChangedMessage("m1", "user-1", "d1"), nil)

		if len(drainMessages(first)) != 1 {
			t.Error("first connection missed the push")
		}
		if len(drainMessages(second)) != 1 {
			t.Error("second connection missed the push")
		}
		if len(drainMessages(stranger)) != 0 {
			t.Error("another user's connection received the push")
		}
	})

	t.Run("except connection is skipped", func(t *testing.T) {
		store := newFakeStore()
		hub := createTestHub(store)
		sender := createTestClient(hub, "user-1")
		receiver := createTestClient(hub, "user-1")

		hub.pushToUser("user-1", NewActiveDeviceChangedMessage("m1", "user-1", "d1"), sender)

		if len(drainMessages(sender)) != 0 {
			t.Error("excluded connection received the push")
		}
		if len(drainMessages(receiver)) != 1 {
			t.Error("other connection missed the push")
		}
	})
}

func TestSendMessageAfterClose(t *testing.T) {
	store := newFakeStore()
	hub := createTestHub(store)
	client := createTestClient(hub, "user-1")

	client.close()

	err := client.SendMessage(NewActiveDeviceChangedMessage("m1", "user-1", "d1"))
	if err != ErrClientDisconnected {
		t.Errorf("SendMessage on a closed client returned %v, want ErrClientDisconnected", err)
	}
}

func TestSendBufferOverflow(t *testing.T) {
	store := newFakeStore()
	hub := createTestHub(store)
	overloaded := createTestClient(hub, "user-1")
	healthy := createTestClient(hub, "user-1")

	msg := NewActiveDeviceChangedMessage("m1", "user-1", "d1")
	for i := 0; i < cap(overloaded.send); i++ {
		if err := overloaded.SendMessage(msg); err != nil {
			t.Fatalf("send %d failed while the buffer had room: %v", i, err)
		}
	}

	if err := overloaded.SendMessage(msg); err != ErrClientDisconnected {
		t.Fatalf("overflowing send returned %v, want ErrClientDisconnected", err)
	}
	if !overloaded.isClosed() {
		t.Error("client not marked closed after the buffer overflowed")
	}

	// The hub can fan out to this client again before its unregister
	// lands; the push must fail cleanly rather than hit the closed
	// channel.
	if err := overloaded.SendMessage(msg); err != ErrClientDisconnected {
		t.Errorf("push after overflow returned %v, want ErrClientDisconnected", err)
	}

	// And the rest of the user's connections are unaffected.
	hub.pushToUser("user-1", msg, nil)
	if len(drainMessages(healthy)) != 1 {
		t.Error("healthy connection missed the fan-out after another client overflowed")
	}
}

func TestWaitForGoroutines(t *testing.T) {
	store := newFakeStore()
	hub := createTestHub(store)
	client := createTestClient(hub, "user-1")

	// Simulate a pump that exits shortly after teardown begins.
	client.wg.Add(1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		client.wg.Done()
	}()

	done := make(chan struct{})
	go func() {
		client.waitForGoroutines(time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waitForGoroutines did not return after the pump exited")
	}
}

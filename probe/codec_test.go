package probe_test

import (
	"strings"
	"testing"

	"github.com/avolia/tickprobe/probe"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := probe.NewCodec()

	t.Run("player move", func(t *testing.T) {
		msg := &probe.PlayerMove{
			Position: probe.Vector3{X: 42, Y: 1.5, Z: -3},
			Rotation: probe.Rotation{Yaw: 90, Pitch: -15},
		}

		data, err := codec.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		decoded, err := codec.Unmarshal(data)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		dm, ok := decoded.(*probe.PlayerMove)
		if !ok {
			t.Fatalf("decoded type: got %T, want *probe.PlayerMove", decoded)
		}
		if *dm != *msg {
			t.Errorf("got %+v, want %+v", dm, msg)
		}
		if dm.Sequence() != 42 {
			t.Errorf("Sequence: got %d, want 42", dm.Sequence())
		}
	})

	t.Run("entity move", func(t *testing.T) {
		msg := &probe.EntityMove{
			Id:        1,
			Position:  probe.Vector3{X: 7},
			Rotation:  probe.Rotation{Yaw: 180},
			Timestamp: 0.0125,
		}

		data, err := codec.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		decoded, err := codec.Unmarshal(data)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		dm, ok := decoded.(*probe.EntityMove)
		if !ok {
			t.Fatalf("decoded type: got %T, want *probe.EntityMove", decoded)
		}
		if *dm != *msg {
			t.Errorf("got %+v, want %+v", dm, msg)
		}
	})

	t.Run("connection info", func(t *testing.T) {
		msg := &probe.ConnectionInfo{
			Login:           "consistency-test",
			Version:         "test",
			Architecture:    "amd64",
			RenderingDevice: "none",
		}

		data, err := codec.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		decoded, err := codec.Unmarshal(data)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		dm, ok := decoded.(*probe.ConnectionInfo)
		if !ok {
			t.Fatalf("decoded type: got %T, want *probe.ConnectionInfo", decoded)
		}
		if *dm != *msg {
			t.Errorf("got %+v, want %+v", dm, msg)
		}
	})

	t.Run("allow connection", func(t *testing.T) {
		data, err := codec.Marshal(&probe.AllowConnection{})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		decoded, err := codec.Unmarshal(data)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		if _, ok := decoded.(*probe.AllowConnection); !ok {
			t.Fatalf("decoded type: got %T, want *probe.AllowConnection", decoded)
		}
	})
}

func TestCodecRejectsUnknownInput(t *testing.T) {
	codec := probe.NewCodec()

	if _, err := codec.Marshal(struct{ X int }{1}); err == nil {
		t.Error("expected error for an unsupported message type")
	}

	if _, err := codec.Unmarshal(nil); err == nil {
		t.Error("expected error for empty data")
	}

	if _, err := codec.Unmarshal([]byte{0xFF, 0x00}); err == nil {
		t.Error("expected error for an unknown tag")
	} else if !strings.Contains(err.Error(), "unknown message tag") {
		t.Errorf("unexpected error: %v", err)
	}
}

package control

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/crazymi/TizenFaceFilter/internal/config"
)

const respTopic = "facefilter/control/response"

// fakeToken completes immediately.
type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeClient records published payloads per topic.
type fakeClient struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: make(map[string][][]byte)}
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() mqtt.Token    { return &fakeToken{} }
func (c *fakeClient) Disconnect(uint)        {}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[topic] = append(c.published[topic], payload.([]byte))
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token { return &fakeToken{} }
func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (c *fakeClient) Unsubscribe(...string) mqtt.Token        { return &fakeToken{} }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) lastResponse(t *testing.T, topic string) Response {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.published[topic]
	if len(msgs) == 0 {
		t.Fatalf("nothing published on %s", topic)
	}
	var resp Response
	if err := json.Unmarshal(msgs[len(msgs)-1], &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return resp
}

// fakeMessage is an inbound control message.
type fakeMessage struct{ payload []byte }

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return "facefilter/control" }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func testConfig() *config.Config {
	return &config.Config{
		InstanceID: "test",
		MQTT: config.MQTTConfig{
			Broker: "tcp://localhost:1883",
			Topics: config.MQTTTopics{
				Control: "facefilter/control",
				Events:  "facefilter/events",
				Health:  "facefilter/health",
			},
			QoS: map[string]byte{"control": 1, "events": 0, "health": 0},
		},
	}
}

func TestHandleCommand_ToggleReportsFlagState(t *testing.T) {
	client := newFakeClient()

	t.Run("success carries new state", func(t *testing.T) {
		h := NewHandler(testConfig(), client, CommandCallbacks{
			OnToggleFaceDetection: func() (bool, error) { return true, nil },
		})

		h.handleCommand(Command{Command: "toggle_face_detection"})

		resp := client.lastResponse(t, respTopic)
		if resp.CommandAck != "toggle_face_detection" {
			t.Errorf("CommandAck = %q, want toggle_face_detection", resp.CommandAck)
		}
		if resp.Status != "success" {
			t.Errorf("Status = %q, want success", resp.Status)
		}
		if enabled, _ := resp.Data["detection_enabled"].(bool); !enabled {
			t.Errorf("Data[detection_enabled] = %v, want true", resp.Data["detection_enabled"])
		}
	})

	t.Run("failed toggle still reports flag off", func(t *testing.T) {
		h := NewHandler(testConfig(), client, CommandCallbacks{
			OnToggleFaceDetection: func() (bool, error) {
				return false, errors.New("detection start failed")
			},
		})

		h.handleCommand(Command{Command: "toggle_face_detection"})

		resp := client.lastResponse(t, respTopic)
		if resp.Status != "error" {
			t.Fatalf("Status = %q, want error", resp.Status)
		}
		if resp.Error != "detection start failed" {
			t.Errorf("Error = %q, want the callback error", resp.Error)
		}
		if enabled, ok := resp.Data["detection_enabled"].(bool); !ok || enabled {
			t.Errorf("Data[detection_enabled] = %v, want false", resp.Data["detection_enabled"])
		}
	})
}

func TestHandleCommand_SetRedactMode(t *testing.T) {
	client := newFakeClient()

	var got string
	h := NewHandler(testConfig(), client, CommandCallbacks{
		OnSetRedactMode: func(mode string) error {
			got = mode
			return nil
		},
	})

	t.Run("missing mode parameter", func(t *testing.T) {
		h.handleCommand(Command{Command: "set_redact_mode"})

		resp := client.lastResponse(t, respTopic)
		if resp.Status != "error" {
			t.Fatalf("Status = %q, want error", resp.Status)
		}
		if !strings.Contains(resp.Error, "mode") {
			t.Errorf("Error = %q, want a complaint about 'mode'", resp.Error)
		}
		if got != "" {
			t.Errorf("callback ran with %q despite missing parameter", got)
		}
	})

	t.Run("mode reaches the callback", func(t *testing.T) {
		h.handleCommand(Command{
			Command: "set_redact_mode",
			Params:  map[string]interface{}{"mode": "all"},
		})

		if got != "all" {
			t.Fatalf("callback got %q, want all", got)
		}
		resp := client.lastResponse(t, respTopic)
		if resp.Status != "success" {
			t.Errorf("Status = %q, want success", resp.Status)
		}
		if resp.Data["redact_mode"] != "all" {
			t.Errorf("Data[redact_mode] = %v, want all", resp.Data["redact_mode"])
		}
	})
}

func TestHandleCommand_CapturePhoto(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(testConfig(), client, CommandCallbacks{
		OnCapturePhoto: func() (string, error) { return "/photos/cam123.jpg", nil },
	})

	h.handleCommand(Command{Command: "capture_photo"})

	resp := client.lastResponse(t, respTopic)
	if resp.Status != "success" {
		t.Fatalf("Status = %q, want success", resp.Status)
	}
	if resp.Data["path"] != "/photos/cam123.jpg" {
		t.Errorf("Data[path] = %v, want the stored path", resp.Data["path"])
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", resp.Timestamp, err)
	}
}

func TestHandleCommand_GetStatusPassesData(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(testConfig(), client, CommandCallbacks{
		OnGetStatus: func() map[string]interface{} {
			return map[string]interface{}{"running": true, "uptime_s": 12.5}
		},
	})

	h.handleCommand(Command{Command: "get_status"})

	resp := client.lastResponse(t, respTopic)
	if resp.Status != "success" {
		t.Fatalf("Status = %q, want success", resp.Status)
	}
	if running, _ := resp.Data["running"].(bool); !running {
		t.Errorf("Data[running] = %v, want true", resp.Data["running"])
	}
}

func TestHandleCommand_UnknownAndUnwired(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(testConfig(), client, CommandCallbacks{})

	t.Run("unknown command", func(t *testing.T) {
		h.handleCommand(Command{Command: "do_a_flip"})

		resp := client.lastResponse(t, respTopic)
		if resp.Status != "error" {
			t.Fatalf("Status = %q, want error", resp.Status)
		}
		if !strings.Contains(resp.Error, "unknown command") {
			t.Errorf("Error = %q, want unknown command", resp.Error)
		}
	})

	t.Run("known command without callback", func(t *testing.T) {
		h.handleCommand(Command{Command: "start_preview"})

		resp := client.lastResponse(t, respTopic)
		if resp.Status != "error" {
			t.Fatalf("Status = %q, want error", resp.Status)
		}
		if !strings.Contains(resp.Error, "not implemented") {
			t.Errorf("Error = %q, want not implemented", resp.Error)
		}
	})
}

func TestMessageHandler_RejectsBadJSON(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(testConfig(), client, CommandCallbacks{})

	h.messageHandler(client, &fakeMessage{payload: []byte("{nope")})

	resp := client.lastResponse(t, respTopic)
	if resp.CommandAck != "unknown" {
		t.Errorf("CommandAck = %q, want unknown", resp.CommandAck)
	}
	if resp.Status != "error" || resp.Error != "invalid JSON" {
		t.Errorf("got status=%q error=%q, want an invalid JSON error", resp.Status, resp.Error)
	}
}

func TestMessageHandler_QueuesAndShedsCommands(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(testConfig(), client, CommandCallbacks{})

	// Nothing drains the queue in this test, so the channel capacity is
	// the shed point.
	payload := []byte(`{"command":"get_status"}`)
	for i := 0; i < cap(h.commands)+5; i++ {
		h.messageHandler(client, &fakeMessage{payload: payload})
	}

	if got := len(h.commands); got != cap(h.commands) {
		t.Fatalf("queued %d commands, want a full queue of %d", got, cap(h.commands))
	}

	// Queued commands survived the overflow intact.
	cmd := <-h.commands
	if cmd.Command != "get_status" {
		t.Errorf("queued command = %q, want get_status", cmd.Command)
	}
}

package thermolight

import (
	"context"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-thermolight/pkg/mqtt"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	publishErr error
	messages   []published
	handlers   map[string]mqtt.MessageHandler
	disconnect int
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeMQTT) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnect++
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages = append(f.messages, published{topic: topic, retained: retained, payload: payload})
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// deliver invokes the handler subscribed to topic
func (f *fakeMQTT) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	handler(&fakeMessage{topic: topic, payload: payload})
	return true
}

func (f *fakeMQTT) byTopic(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (m *fakeMessage) Ack()            {}

type fakeRedis struct {
	mu      sync.Mutex
	hashes  map[string]map[string]interface{}
	ttls    map[string]time.Duration
	pingErr error
	setErr  error
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		hashes: make(map[string]map[string]interface{}),
		ttls:   make(map[string]time.Duration),
	}
}

func (r *fakeRedis) HSetAll(ctx context.Context, key string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	h, ok := r.hashes[key]
	if !ok {
		h = make(map[string]interface{})
		r.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (r *fakeRedis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttls[key] = ttl
	return nil
}

func (r *fakeRedis) Ping(ctx context.Context) error { return r.pingErr }

func (r *fakeRedis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRedis) hash(key string) map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hashes[key]
}

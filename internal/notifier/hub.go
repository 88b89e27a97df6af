package notifier

import (
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
)

// AllTasks is the topic that receives the events of every task.
const AllTasks = "*"

// Hub fans events out to per-topic subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]chan *Event
}

func New() *Hub {
	return &Hub{
		topics: make(map[string]map[string]chan *Event),
	}
}

func (h *Hub) Subscribe(topic string, bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]chan *Event)
		h.topics[topic] = subs
	}
	subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe closes the subscriber's channel. Unknown ids are ignored.
func (h *Hub) Unsubscribe(topic, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	if ch, ok := subs[id]; ok {
		close(ch)
		delete(subs, id)
	}
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Publish delivers ev to the subscribers of taskID and of AllTasks.
func (h *Hub) Publish(taskID string, ev *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(taskID, ev)
	if taskID != AllTasks {
		h.deliver(AllTasks, ev)
	}
}

func (h *Hub) deliver(topic string, ev *Event) {
	for id, ch := range h.topics[topic] {
		select {
		case ch <- ev:
		default:
			slog.Debug("notifier subscriber buffer full, event dropped",
				"topic", topic, "subscriber_id", id, "event_type", ev.Type, "task_id", ev.TaskID)
		}
	}
}

func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

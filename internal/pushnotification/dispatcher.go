package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prism/prism/internal/lifecycle"
	"github.com/prism/prism/internal/notifier"
	"github.com/prism/prism/internal/task"
)

// Dispatcher watches every task and alerts when one starts waiting for an
// approval or fails. A task is alerted once per state it enters.
type Dispatcher struct {
	hub      *notifier.Hub
	tasks    task.Repository
	notifier Notifier
	bufSize  int

	alerted map[string]string
}

func NewDispatcher(hub *notifier.Hub, tasks task.Repository, n Notifier, bufSize int) *Dispatcher {
	return &Dispatcher{
		hub:      hub,
		tasks:    tasks,
		notifier: n,
		bufSize:  bufSize,
		alerted:  make(map[string]string),
	}
}

// Start blocks until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.hub.Subscribe(notifier.AllTasks, d.bufSize)
	defer d.hub.Unsubscribe(notifier.AllTasks, subID)

	slog.InfoContext(ctx, "push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "push notification dispatcher stopped")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev *notifier.Event) {
	title, key := alertFor(ev)
	if key == "" {
		delete(d.alerted, ev.TaskID)
		return
	}
	if d.alerted[ev.TaskID] == key {
		return
	}
	d.alerted[ev.TaskID] = key
	if key == string(lifecycle.StatusFailed) {
		// Terminal, nothing more will arrive for this task.
		delete(d.alerted, ev.TaskID)
	}

	body := ev.TaskID
	if t, err := d.tasks.Get(ctx, ev.TaskID); err == nil {
		body = t.Title
	} else {
		slog.WarnContext(ctx, "push dispatcher: failed to get task", "task_id", ev.TaskID, "error", err)
	}

	sent := d.notifier.SendToAll(ctx, &Payload{
		Title: title,
		Body:  body,
		URL:   fmt.Sprintf("/tasks/%s", ev.TaskID),
		Tag:   ev.TaskID,
	})
	slog.DebugContext(ctx, "push notification sent", "task_id", ev.TaskID, "reason", key, "delivered", sent)
}

func alertFor(ev *notifier.Event) (title, key string) {
	switch {
	case ev.Status == lifecycle.StatusFailed:
		return "Task failed", string(lifecycle.StatusFailed)
	case ev.NextAction == lifecycle.NextActionCommitApproval:
		return "Commit approval needed", string(ev.NextAction)
	case ev.NextAction == lifecycle.NextActionPushApproval:
		return "Push approval needed", string(ev.NextAction)
	}
	return "", ""
}

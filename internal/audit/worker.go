package audit

import "context"

// Worker consumes audit events from a channel and persists them, letting
// the attendance write path emit without blocking on storage.
type Worker struct {
	store Store
	inbox <-chan Event
}

func NewWorker(store Store, inbox <-chan Event) *Worker {
	return &Worker{store: store, inbox: inbox}
}

// Run persists events until the context is cancelled. Buffered events
// still in the inbox at shutdown are flushed before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush(ctx)
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) flush(ctx context.Context) {
	for {
		select {
		case event := <-w.inbox:
			_ = w.store.Append(context.WithoutCancel(ctx), event)
		default:
			return
		}
	}
}

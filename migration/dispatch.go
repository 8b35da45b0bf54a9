package migration

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/models"
	"golang.org/x/sync/errgroup"
)

// Task is one chunk of remote ids of a kind. It is also the Pub/Sub payload.
type Task struct {
	RunId      int               `json:"run_id"`
	Kind       models.EntityKind `json:"kind"`
	JobId      int               `json:"job_id"`
	TaskId     string            `json:"task_id"`
	Batch      string            `json:"batch"`
	ChunkIndex int               `json:"chunk_index"`
	JournalId  *int              `json:"journal_id,omitempty"`
	RemoteIds  []int             `json:"remote_ids"`
	Final      bool              `json:"final,omitempty"`
}

type TaskFunc func(ctx context.Context, t Task) error

// Dispatcher hands tasks to workers. Synchronous dispatchers return once every
// task ran; asynchronous ones return once every task is queued elsewhere.
type Dispatcher interface {
	Dispatch(ctx context.Context, tasks []Task, exec TaskFunc) error
	Async() bool
}

func NewDispatcher(t config.Tunables) Dispatcher {
	switch t.Dispatch {
	case config.DispatchInline:
		return InlineDispatcher{}
	case config.DispatchPubSub:
		return NewPubSubDispatcher(t.PubSubTopic)
	}
	return PoolDispatcher{Workers: t.Workers}
}

// InlineDispatcher runs tasks one after another on the caller's goroutine.
type InlineDispatcher struct{}

func (InlineDispatcher) Async() bool { return false }

func (InlineDispatcher) Dispatch(ctx context.Context, tasks []Task, exec TaskFunc) error {
	var errs []error
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := exec(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PoolDispatcher feeds a channel drained by Workers goroutines. A failing task
// does not stop its siblings.
type PoolDispatcher struct {
	Workers int
}

func (PoolDispatcher) Async() bool { return false }

func (p PoolDispatcher) Dispatch(ctx context.Context, tasks []Task, exec TaskFunc) error {
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	queue := make(chan Task)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for t := range queue {
				if err := exec(ctx, t); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
			return nil
		})
	}

feed:
	for _, t := range tasks {
		select {
		case <-ctx.Done():
			break feed
		case queue <- t:
		}
	}
	close(queue)
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PubSubDispatcher publishes every task; PubSubPushHandler runs them.
type PubSubDispatcher struct {
	Topic   string
	publish func(ctx context.Context, topic string, obj interface{}, attrs map[string]string) (string, error)
}

func NewPubSubDispatcher(topic string) PubSubDispatcher {
	return PubSubDispatcher{Topic: topic, publish: config.PublishJSON}
}

func (PubSubDispatcher) Async() bool { return true }

func (p PubSubDispatcher) Dispatch(ctx context.Context, tasks []Task, _ TaskFunc) error {
	publish := p.publish
	if publish == nil {
		publish = config.PublishJSON
	}
	var errs []error
	for _, t := range tasks {
		attrs := map[string]string{
			"run_id": strconv.Itoa(t.RunId),
			"kind":   string(t.Kind),
			"batch":  t.Batch,
		}
		if _, err := publish(ctx, p.Topic, t, attrs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

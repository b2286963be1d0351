// Package taskspurger sweeps orphaned tasks in the background.
//
// Deleting an account removes its tasks at once, but an access token issued
// before the deletion stays valid until it expires and can still add tasks
// under the old username. Owners are queued as they are deleted and, on every
// tick, tasks of queued usernames that still have no account are dropped. A
// username registered again in the meantime keeps its tasks.
package taskspurger

import (
	"context"
	"time"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/todoapp/internal/logger"
	"github.com/patric-chuzhbe/todoapp/internal/metrics"
)

type taskDeleter interface {
	DeleteOrphanTasks(ctx context.Context, usernames []string) (int64, error)
}

type TasksPurger struct {
	queue                    chan string
	db                       taskDeleter
	delayBetweenQueueFetches time.Duration
	errorChannel             chan error
	done                     chan struct{}
}

func New(
	db taskDeleter,
	channelCapacity int,
	delayBetweenQueueFetches time.Duration,
) *TasksPurger {
	return &TasksPurger{
		db:                       db,
		queue:                    make(chan string, channelCapacity),
		delayBetweenQueueFetches: delayBetweenQueueFetches,
		errorChannel:             make(chan error, channelCapacity),
		done:                     make(chan struct{}),
	}
}

// ListenErrors calls callback for every failed purge in its own goroutine.
func (p *TasksPurger) ListenErrors(callback func(error)) {
	go func() {
		for err := range p.errorChannel {
			callback(err)
		}
	}()
}

// EnqueueOwner schedules a sweep of tasks left behind by the deleted username.
func (p *TasksPurger) EnqueueOwner(username string) {
	p.queue <- username
}

// Run starts the purge loop. When ctx is cancelled the queue is drained,
// a final batch is flushed and Done is closed.
func (p *TasksPurger) Run(ctx context.Context) {
	go func() {
		defer close(p.done)
		defer close(p.errorChannel)

		ticker := time.NewTicker(p.delayBetweenQueueFetches)
		defer ticker.Stop()

		var owners []string

		for {
			select {
			case owner := <-p.queue:
				owners = append(owners, owner)
			case <-ticker.C:
				if p.flush(context.Background(), owners) {
					owners = nil
				}
			case <-ctx.Done():
				p.flush(context.Background(), p.drain(owners))
				return
			}
		}
	}()
}

// Done is closed after Run has flushed its last batch.
func (p *TasksPurger) Done() <-chan struct{} {
	return p.done
}

func (p *TasksPurger) drain(owners []string) []string {
	for {
		select {
		case owner := <-p.queue:
			owners = append(owners, owner)
		default:
			return owners
		}
	}
}

func (p *TasksPurger) flush(ctx context.Context, owners []string) bool {
	if len(owners) == 0 {
		return true
	}

	purged, err := p.db.DeleteOrphanTasks(ctx, funk.UniqString(owners))
	if err != nil {
		select {
		case p.errorChannel <- err:
		default:
			logger.Log.Errorln("tasks purge failed and the error channel is full", "err", err)
		}
		return false
	}

	metrics.TasksPurgedTotal.Add(float64(purged))
	logger.Log.Infof("purged %d orphaned tasks of %d deleted users", purged, len(owners))

	return true
}

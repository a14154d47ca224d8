package flexmailer

import (
	"context"
	"errors"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"flexmailer/mailing"
)

type Event int

const (
	// a batch of tasks is about to be rendered; listeners may alter it
	EventAlterBatch Event = iota
	// a batch finished the alter phase
	EventBatchAltered
)

var eventList = [...]string{
	"batch:alter",
	"batch:altered",
}

func (e Event) String() string {
	return eventList[e]
}

// Events dispatches batch events to subscribed listeners. Handlers run
// synchronously, in subscription order, on the publishing goroutine.
type Events struct {
	mu  sync.Mutex
	bus evbus.Bus
}

func (h *Events) getBus() evbus.Bus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bus == nil {
		h.bus = evbus.New()
	}
	return h.bus
}

func (h *Events) Subscribe(topic Event, fn interface{}) error {
	return h.getBus().Subscribe(topic.String(), fn)
}

func (h *Events) Publish(topic Event, args ...interface{}) {
	h.getBus().Publish(topic.String(), args...)
}

func (h *Events) Unsubscribe(topic Event, handler interface{}) error {
	return h.getBus().Unsubscribe(topic.String(), handler)
}

// AlterBatch publishes e to the alter-batch listeners, then announces that the
// batch has been altered. It returns e.Err().
func (h *Events) AlterBatch(e *AlterBatchEvent) error {
	h.Publish(EventAlterBatch, e)
	h.Publish(EventBatchAltered, e)
	return e.Err()
}

// AlterBatchEvent carries one batch through the alter phase. Listeners
// mutate task headers in place and report per-task problems with Fail.
type AlterBatchEvent struct {
	ctx     context.Context
	mailing *mailing.Mailing
	job     mailing.Job
	tasks   []*mailing.Task

	mu       sync.Mutex
	failures []error
}

// NewAlterBatchEvent returns an event for the given batch.
func NewAlterBatchEvent(ctx context.Context, m *mailing.Mailing, job mailing.Job, tasks []*mailing.Task) *AlterBatchEvent {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlterBatchEvent{ctx: ctx, mailing: m, job: job, tasks: tasks}
}

func (e *AlterBatchEvent) Context() context.Context  { return e.ctx }
func (e *AlterBatchEvent) Mailing() *mailing.Mailing { return e.mailing }
func (e *AlterBatchEvent) Job() mailing.Job          { return e.job }
func (e *AlterBatchEvent) Tasks() []*mailing.Task    { return e.tasks }

// Fail records a problem found while altering the batch.
func (e *AlterBatchEvent) Fail(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.failures = append(e.failures, err)
	e.mu.Unlock()
}

// Failures returns the recorded problems in report order.
func (e *AlterBatchEvent) Failures() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.failures...)
}

// Err joins all recorded problems.
func (e *AlterBatchEvent) Err() error {
	return errors.Join(e.Failures()...)
}

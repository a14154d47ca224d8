package flexmailer

import (
	"flexmailer/composer"
)

// BasicHeaders injects List-Unsubscribe, Message-ID, Precedence, job_id,
// From and Reply-To into every task of an altered batch.
type BasicHeaders struct {
	composer *composer.Composer
	handler  func(*AlterBatchEvent)
}

func NewBasicHeaders(c *composer.Composer) *BasicHeaders {
	l := &BasicHeaders{composer: c}
	l.handler = l.OnAlterBatch
	return l
}

// OnAlterBatch composes the headers of the event's tasks. Tasks whose
// addressing cannot be resolved are reported on the event and left as is.
func (l *BasicHeaders) OnAlterBatch(e *AlterBatchEvent) {
	report := l.composer.Compose(e.Context(), e.Mailing(), e.Job(), e.Tasks())
	for _, f := range report.Failures {
		e.Fail(f)
	}
	e.Fail(report.Canceled)
}

// Register subscribes the listener to EventAlterBatch.
func (l *BasicHeaders) Register(ev *Events) error {
	return ev.Subscribe(EventAlterBatch, l.handler)
}

// Unregister removes the listener from EventAlterBatch.
func (l *BasicHeaders) Unregister(ev *Events) error {
	return ev.Unsubscribe(EventAlterBatch, l.handler)
}

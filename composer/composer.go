// Package composer adds the standard bulk-mail headers to every recipient of
// a mailing batch.
package composer

import (
	"context"
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"

	"flexmailer/internal/audit"
	"flexmailer/internal/headers"
	"flexmailer/internal/metrics"
	"flexmailer/mailing"
)

const (
	messageIDTag = "m"
	precedence   = "bulk"
)

// Composer computes List-Unsubscribe, Message-ID, Precedence, job_id, From
// and Reply-To for each task and merges them under the headers the task
// already carries. It holds no per-batch state.
type Composer struct {
	messageID headers.MessageIDFunc
	log       logrus.FieldLogger
}

// New returns a Composer using messageID to build Message-ID values.
func New(messageID headers.MessageIDFunc, log logrus.FieldLogger) *Composer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Composer{messageID: messageID, log: log}
}

// Report summarizes one Compose call.
type Report struct {
	Composed int
	Failures []*mailing.ResolutionError
	// Canceled is set when the context ended before every task was visited.
	Canceled error
}

// Err joins all failures, or returns nil when every task was composed.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failures)+1)
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	if r.Canceled != nil {
		errs = append(errs, r.Canceled)
	}
	return errors.Join(errs...)
}

// Compose updates the headers of every task in order. A task whose addressing
// cannot be resolved is left untouched and reported; the remaining tasks are
// still processed.
func (c *Composer) Compose(ctx context.Context, m *mailing.Mailing, job mailing.Job, tasks []*mailing.Task) Report {
	var report Report
	metrics.BatchesComposed.Add(1)
	metrics.SetLastBatchSize(len(tasks))

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			report.Canceled = err
			c.log.WithError(err).WithField("job_id", job.ID).Warn("header composition interrupted")
			break
		}
		if task == nil {
			continue
		}

		addr, err := m.ResolveAddressing(ctx, job.ID, task.EventQueueID, task.Hash, task.Address)
		if err != nil {
			var re *mailing.ResolutionError
			if !errors.As(err, &re) {
				re = &mailing.ResolutionError{
					Lookup: mailing.Lookup{JobID: job.ID, QueueID: task.EventQueueID, Hash: task.Hash, Address: task.Address},
					Err:    err,
				}
			}
			report.Failures = append(report.Failures, re)
			metrics.ResolutionFailures.Add(1)
			c.log.WithFields(logrus.Fields{
				"job_id":         job.ID,
				"event_queue_id": task.EventQueueID,
			}).WithError(re.Err).Warn("skipping recipient: addressing unresolved")
			continue
		}

		computed := c.computed(m, job, task, addr)
		task.SetHeaders(headers.Merge(computed, task.Headers))
		report.Composed++
		metrics.TasksComposed.Add(1)
		audit.Log("composed headers for job %d queue %d", job.ID, task.EventQueueID)
	}

	c.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"tasks":    len(tasks),
		"composed": report.Composed,
		"failed":   len(report.Failures),
	}).Debug("batch headers composed")
	return report
}

func (c *Composer) computed(m *mailing.Mailing, job mailing.Job, task *mailing.Task, addr mailing.Addressing) *headers.Map {
	h := headers.New()
	h.Set(headers.ListUnsubscribe, "<mailto:"+addr.Unsubscribe+">")
	h.Set(headers.MessageID, c.messageID(messageIDTag, job.ID, task.EventQueueID, task.Hash))
	h.Set(headers.Precedence, precedence)
	h.Set(headers.JobID, strconv.FormatInt(job.ID, 10))

	from := "\"" + m.FromName + "\" <" + m.FromEmail + ">"
	h.Set(headers.From, from)

	// The override compares the display-form From with a bare address, so it
	// applies whenever a mailing-wide reply address is set.
	replyTo := addr.Reply
	if mailingReply, ok := m.ReplyTo(); ok && from != mailingReply {
		replyTo = mailingReply
	}
	h.Set(headers.ReplyTo, replyTo)
	return h
}

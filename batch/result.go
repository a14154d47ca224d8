package batch

import (
	"encoding/json"
	"errors"
	"io"

	"flexmailer/internal/headers"
	"flexmailer/mailing"
)

// TaskResult is the outcome for one recipient. Headers is null when the task
// must not be delivered.
type TaskResult struct {
	EventQueueID int64        `json:"event_queue_id"`
	Address      string       `json:"address"`
	Headers      *headers.Map `json:"headers"`
	Error        string       `json:"error,omitempty"`
}

// Result is the document written back to the host.
type Result struct {
	JobID    int64        `json:"job_id"`
	Composed int          `json:"composed"`
	Failed   int          `json:"failed"`
	Tasks    []TaskResult `json:"tasks"`
	// Errors lists failures not tied to a single task.
	Errors []string `json:"errors,omitempty"`
}

// NewResult pairs every task with its failure, if any.
func NewResult(b *Batch, failures []error) Result {
	byQueue := make(map[int64]error)
	res := Result{JobID: b.Job.ID, Tasks: make([]TaskResult, 0, len(b.Tasks))}
	for _, err := range failures {
		var re *mailing.ResolutionError
		if errors.As(err, &re) {
			byQueue[re.Lookup.QueueID] = re
			continue
		}
		res.Errors = append(res.Errors, err.Error())
	}

	for _, task := range b.Tasks {
		tr := TaskResult{EventQueueID: task.EventQueueID, Address: task.Address}
		if err, ok := byQueue[task.EventQueueID]; ok {
			tr.Error = err.Error()
			res.Failed++
		} else if task.Headers != nil {
			tr.Headers = task.Headers
			res.Composed++
		}
		res.Tasks = append(res.Tasks, tr)
	}
	return res
}

// Fail marks the task for queueID as not deliverable after it was composed,
// for example when its headers cannot be rendered. It reports whether the
// task was found.
func (r *Result) Fail(queueID int64, err error) bool {
	for i := range r.Tasks {
		tr := &r.Tasks[i]
		if tr.EventQueueID != queueID {
			continue
		}
		if tr.Error == "" {
			if tr.Headers != nil {
				r.Composed--
			}
			r.Failed++
		}
		tr.Headers = nil
		tr.Error = err.Error()
		return true
	}
	return false
}

// Failures returns the tasks that could not be composed.
func (r Result) Failures() []TaskResult {
	var out []TaskResult
	for _, t := range r.Tasks {
		if t.Error != "" {
			out = append(out, t)
		}
	}
	return out
}

// EncodeResult writes r as indented JSON.
func EncodeResult(w io.Writer, r Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Package batch reads mailing batches handed over by the host and writes the
// composed per-recipient headers back.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"flexmailer/flexmailer"
	"flexmailer/internal/email"
	"flexmailer/mailing"
)

var (
	ErrInvalidBatch   = errors.New("invalid batch")
	ErrDuplicateQueue = errors.New("duplicate event queue id")
)

// Batch is one decoded batch ready for the alter phase.
type Batch struct {
	Mailing *mailing.Mailing
	Job     mailing.Job
	Tasks   []*mailing.Task
}

type fileTask struct {
	mailing.Task
	Addressing *mailing.Addressing `json:"addressing,omitempty"`
}

type fileBatch struct {
	Mailing *mailing.Mailing `json:"mailing"`
	Job     *mailing.Job     `json:"job"`
	Tasks   []fileTask       `json:"tasks"`
}

// Decode reads a batch document. Addressing precomputed by the host is loaded
// into a table resolver attached to the mailing; tasks without addressing are
// kept and will fail resolution.
func Decode(r io.Reader) (*Batch, error) {
	var doc fileBatch
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if doc.Mailing == nil {
		return nil, fmt.Errorf("%w: missing mailing", ErrInvalidBatch)
	}
	if doc.Job == nil || doc.Job.ID <= 0 {
		return nil, fmt.Errorf("%w: missing or invalid job id", ErrInvalidBatch)
	}
	if _, err := email.ParseAddress(doc.Mailing.FromEmail); err != nil {
		return nil, fmt.Errorf("%w: mailing from_email: %v", ErrInvalidBatch, err)
	}

	resolver := mailing.NewTableResolver()
	seen := make(map[int64]bool, len(doc.Tasks))
	tasks := make([]*mailing.Task, 0, len(doc.Tasks))
	for i := range doc.Tasks {
		ft := doc.Tasks[i]
		if seen[ft.EventQueueID] {
			return nil, fmt.Errorf("%w: %w %d", ErrInvalidBatch, ErrDuplicateQueue, ft.EventQueueID)
		}
		seen[ft.EventQueueID] = true

		if ft.Addressing != nil {
			resolver.Add(ft.EventQueueID, ft.Hash, ft.Address, *ft.Addressing)
		}
		task := ft.Task
		tasks = append(tasks, &task)
	}

	m := doc.Mailing
	m.Addressing = resolver
	return &Batch{Mailing: m, Job: *doc.Job, Tasks: tasks}, nil
}

// Event wraps the batch for dispatch to alter-batch listeners.
func (b *Batch) Event(ctx context.Context) *flexmailer.AlterBatchEvent {
	return flexmailer.NewAlterBatchEvent(ctx, b.Mailing, b.Job, b.Tasks)
}

package mailing

import (
	"context"
	"strings"

	"flexmailer/internal/headers"
)

// Mailing is the read-only view of a campaign the header step needs.
type Mailing struct {
	ID        int64  `json:"id"`
	Name      string `json:"name,omitempty"`
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	// ReplyToEmail is optional; nil and blank both mean unset.
	ReplyToEmail *string `json:"replyto_email,omitempty"`

	// Addressing resolves per-recipient VERP tokens. It is supplied by the host.
	Addressing Resolver `json:"-"`
}

// ReplyTo returns the mailing-wide reply address and whether one is set.
func (m *Mailing) ReplyTo() (string, bool) {
	if m == nil || m.ReplyToEmail == nil {
		return "", false
	}
	v := strings.TrimSpace(*m.ReplyToEmail)
	return v, v != ""
}

// ResolveAddressing looks up the recipient-specific addresses for one task.
// Every failure is returned as a *ResolutionError.
func (m *Mailing) ResolveAddressing(ctx context.Context, jobID, queueID int64, hash, address string) (Addressing, error) {
	lookup := Lookup{JobID: jobID, QueueID: queueID, Hash: hash, Address: address}
	if m == nil || m.Addressing == nil {
		return Addressing{}, &ResolutionError{Lookup: lookup, Err: ErrNoResolver}
	}
	addr, err := m.Addressing.Resolve(ctx, lookup)
	if err != nil {
		return Addressing{}, asResolutionError(lookup, err)
	}
	return addr, nil
}

// Job identifies one run of a mailing.
type Job struct {
	ID int64 `json:"id"`
}

// Task is one recipient of a batch.
type Task struct {
	EventQueueID int64        `json:"event_queue_id"`
	Hash         string       `json:"hash"`
	Address      string       `json:"address"`
	Headers      *headers.Map `json:"headers,omitempty"`
}

// HeadersOrEmpty returns the task headers, never nil.
func (t *Task) HeadersOrEmpty() *headers.Map {
	if t.Headers == nil {
		return headers.New()
	}
	return t.Headers
}

// SetHeaders replaces the task headers.
func (t *Task) SetHeaders(h *headers.Map) {
	t.Headers = h
}

// Addressing holds the VERP addresses computed by the host for one recipient.
type Addressing struct {
	Unsubscribe string            `json:"unsubscribe"`
	Reply       string            `json:"reply"`
	URLs        map[string]string `json:"urls,omitempty"`
}

// Lookup identifies the recipient whose addressing is requested.
type Lookup struct {
	JobID   int64
	QueueID int64
	Hash    string
	Address string
}

// Resolver returns the precomputed addressing for a recipient.
// Implementations must not modify the mailing or the job.
type Resolver interface {
	Resolve(ctx context.Context, l Lookup) (Addressing, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, l Lookup) (Addressing, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, l Lookup) (Addressing, error) {
	return f(ctx, l)
}

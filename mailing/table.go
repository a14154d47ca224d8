package mailing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"flexmailer/internal/email"
)

type entry struct {
	hash    string
	address string
	addr    Addressing
}

// TableResolver serves addressing the host computed ahead of time, keyed by
// queue id. Reads are safe for concurrent use.
type TableResolver struct {
	mu      sync.RWMutex
	entries map[int64]entry
}

// NewTableResolver returns an empty resolver.
func NewTableResolver() *TableResolver {
	return &TableResolver{entries: make(map[int64]entry)}
}

// Add registers the addressing of the recipient at queueID.
func (r *TableResolver) Add(queueID int64, hash, address string, addr Addressing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[queueID] = entry{hash: hash, address: address, addr: addr}
}

// Len returns the number of registered recipients.
func (r *TableResolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Resolve validates the lookup against the registered entry and returns its
// addressing.
func (r *TableResolver) Resolve(ctx context.Context, l Lookup) (Addressing, error) {
	if err := ctx.Err(); err != nil {
		return Addressing{}, err
	}
	if err := ValidateHash(l.Hash); err != nil {
		return Addressing{}, err
	}
	addr, err := email.ParseAddress(l.Address)
	if err != nil {
		return Addressing{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	r.mu.RLock()
	e, ok := r.entries[l.QueueID]
	r.mu.RUnlock()
	if !ok {
		return Addressing{}, ErrUnknownRecipient
	}
	if e.hash != l.Hash {
		return Addressing{}, ErrHashMismatch
	}
	if e.address != "" {
		registered, err := email.ParseAddress(e.address)
		if err != nil || registered != addr {
			return Addressing{}, fmt.Errorf("%w: address does not match queue entry", ErrInvalidAddress)
		}
	}
	if strings.TrimSpace(e.addr.Unsubscribe) == "" || strings.TrimSpace(e.addr.Reply) == "" {
		return Addressing{}, fmt.Errorf("%w: incomplete addressing", ErrUnknownRecipient)
	}
	return e.addr, nil
}

// ValidateHash checks that a verification hash is a non-empty alphanumeric token.
func ValidateHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("%w: empty", ErrMalformedHash)
	}
	for _, c := range hash {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		default:
			return fmt.Errorf("%w: unexpected character %q", ErrMalformedHash, c)
		}
	}
	return nil
}

// Package objstore defines the content-addressed object store client
// contract and two concrete backends: a filesystem-backed store used as
// the default/test backend, and a bbolt-cached wrapper for a remote
// store. The network-attached LFS-like pointer store referenced in the
// design is an external collaborator selected by the deployment, not
// implemented here — CachedStore is how a caller plugs one in while
// still getting a local cache in front of it.
package objstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the oid is not present in the
// store.
var ErrNotFound = errors.New("objstore: object not found")

// NotFoundError wraps ErrNotFound with the oid that was missing, so
// callers up the stack (smudge) can report it without re-parsing a
// message string.
type NotFoundError struct {
	Oid string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("objstore: object %s not found", e.Oid) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Store is the opaque content-addressed object store client. Put is
// idempotent: storing identical bytes twice yields the same oid. Get may
// block on network I/O; implementations must not assume local-only
// storage. Push uploads a batch of oids to a named remote and must
// surface failures rather than drop them silently.
type Store interface {
	Put(ctx context.Context, data []byte) (oid string, err error)
	Get(ctx context.Context, oid string) ([]byte, error)
	Push(ctx context.Context, oids []string, remote string) error
}

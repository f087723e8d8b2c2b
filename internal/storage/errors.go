package storage

import "errors"

// ErrUnknownKind indicates an entity kind the storage does not track,
// e.g. a record written by a newer application version.
var ErrUnknownKind = errors.New("unknown entity kind")

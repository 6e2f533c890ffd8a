package storer

import (
	"errors"
	"fmt"
)

// ErrMissingReference is returned when an event refers to an entity that was never stored,
// such as a minting for an unknown collateral reservation.
var ErrMissingReference = errors.New("missing referenced entity")

// MissingReferenceError names the entity an event could not be linked to.
type MissingReferenceError struct {
	Event  string
	Entity string
	Key    string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("%s refers to unknown %s %s", e.Event, e.Entity, e.Key)
}

func (e *MissingReferenceError) Unwrap() error {
	return ErrMissingReference
}

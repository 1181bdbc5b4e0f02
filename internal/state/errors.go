package state

import "errors"

var (
	// ErrSchemaViolation signals that a node emitted a field that is not
	// declared on the RunState schema, or a value of the wrong type. Fatal.
	ErrSchemaViolation = errors.New("state: schema violation")

	// ErrConflictingWrite signals that two branches wrote the same
	// replace-reducer field within one fan-out cycle. Fatal: it means the
	// graph topology routed a replace field through parallel branches.
	ErrConflictingWrite = errors.New("state: conflicting write")
)

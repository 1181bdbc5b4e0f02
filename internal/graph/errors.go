package graph

import "errors"

var (
	// ErrUnknownNode signals a routing decision naming a node that was never
	// registered. Fatal: graph misconfiguration.
	ErrUnknownNode = errors.New("graph: unknown node")

	// ErrNoProgress signals a non-terminal node that produced neither a next
	// node nor a fan-out list. Fatal: graph misconfiguration.
	ErrNoProgress = errors.New("graph: no progress")

	// ErrDuplicateNode signals two registrations under the same node ID.
	ErrDuplicateNode = errors.New("graph: duplicate node")
)

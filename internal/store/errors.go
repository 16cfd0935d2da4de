package store

import "errors"

var (
	// ErrSwarmNotFound is returned when a swarm_id has no matching row.
	ErrSwarmNotFound = errors.New("swarm not found")

	// ErrWorkerAlreadyRegistered is returned when a (swarm_id, packet_id)
	// pair violates the workers table's UNIQUE constraint.
	ErrWorkerAlreadyRegistered = errors.New("worker already registered")
)

// sqliteConstraintUnique is the extended result code modernc.org/sqlite
// reports for a UNIQUE constraint violation (SQLITE_CONSTRAINT_UNIQUE).
const sqliteConstraintUnique = 2067

package plan

import "github.com/google/uuid"

// ID is a stable identifier for a plan object (task, event generator, or
// free event). Relation graphs and transaction proxies key on ID rather
// than on Go pointers so that an object's identity survives being wrapped,
// serialized, and replayed from a log (§6 Serialized form, §9 Design notes
// on arena-indexed cyclic graphs).
type ID string

// newID returns a fresh, globally unique ID.
func newID() ID {
	return ID(uuid.NewString())
}

// PropagationID identifies a single emission. Two events emitted in the
// same propagation pass share no PropagationID; every emission gets its own.
type PropagationID = ID

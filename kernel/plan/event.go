package plan

import "time"

// Event is an immutable record produced by a single emission (§3). Its
// provenance fields are computed once at emission time from the
// propagation step that caused it.
type Event struct {
	ID        PropagationID
	Time      time.Time
	Generator *EventGenerator
	Context   any

	// DirectSources are the generators whose emission, in the same
	// propagation pass, directly caused this one (via signal or forward).
	DirectSources []ID
	// AllSources is the transitive closure of DirectSources.
	AllSources []ID
	// TaskOnlySources is AllSources filtered to generators owned by a task
	// (i.e. excluding free events), deduplicated by owning task ID.
	TaskOnlySources []ID
}

// Terminal reports whether this specific emitted event is classified as a
// terminal event at the instance level: true if its generator is marked
// terminal on the owning task's model (§4.3 scenario 2: forwarding events
// report terminal?=true at the instance level too, since both the direct
// cause and the ultimate terminal event share the classification once
// wired by forward edges into a terminal sink).
func (e *Event) Terminal() bool {
	if e.Generator == nil {
		return false
	}
	return e.Generator.terminal
}

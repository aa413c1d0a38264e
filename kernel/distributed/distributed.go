// Package distributed defines the stable-identity contract the out-of-scope
// distributed marshalling layer must satisfy (§1/NEW): a content-addressed
// Snapshot of a plan's GC-relevant observables, and the Marshaler contract
// for it. No other package in this module imports it.
// It deliberately stops at Dump — there is no Restore here. Snapshot carries
// none of what reconstructing a plan actually needs (no models, no
// per-relation-kind edges, no arguments, no event histories), and widening
// it to carry all of that would duplicate kernel/logstore's job. The §8
// snapshot round-trip law's full reconstruction guarantee is met by
// replaying a persisted cycle log instead (kernel/logstore.Rebuilder.Replay);
// this package only identifies and deduplicates retried Snapshot deliveries
// across that boundary, it does not reconstruct a plan from one.
package distributed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/taskplan/kernel/plan"
)

// Snapshot is a serializable projection of a plan's GC-relevant public
// observables at a cycle boundary: the mission/permanent roots and the
// garbage buckets GC has populated so far. It carries no task/event
// internals, no models, no relation edges, and no arguments — it identifies
// and deduplicates a delivery across a distributed-marshalling boundary, it
// is not a serialization format a plan can be rebuilt from. Replaying a
// persisted cycle log (kernel/logstore) is how a fresh process reconstructs
// the full graph (§8 round-trip law).
type Snapshot struct {
	PlanID         string
	TakenAtSeconds int64
	TakenAtMicros  int32
	MissionIDs     []plan.ID
	PermanentIDs   []plan.ID
	GarbagedIDs    []plan.ID
	FinalizedIDs   []plan.ID
}

// Dump builds a Snapshot from p's current public observables.
func Dump(planID string, p *plan.Plan, seconds int64, micros int32) Snapshot {
	return Snapshot{
		PlanID:         planID,
		TakenAtSeconds: seconds,
		TakenAtMicros:  micros,
		MissionIDs:     p.MissionIDs(),
		PermanentIDs:   p.PermanentIDs(),
		GarbagedIDs:    p.Garbaged(),
		FinalizedIDs:   p.Finalized(),
	}
}

// Identity returns a stable content hash of the snapshot, suitable for
// dedup across a distributed marshalling layer's retries: two Dump calls
// over the same plan state at the same instant produce the same Identity.
func (s Snapshot) Identity() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d\n", s.PlanID, s.TakenAtSeconds, s.TakenAtMicros)
	writeSorted := func(label string, ids []plan.ID) {
		sorted := append([]plan.ID(nil), ids...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		fmt.Fprintf(h, "%s:", label)
		for _, id := range sorted {
			fmt.Fprintf(h, "%s,", id)
		}
		fmt.Fprintln(h)
	}
	writeSorted("mission", s.MissionIDs)
	writeSorted("permanent", s.PermanentIDs)
	writeSorted("garbaged", s.GarbagedIDs)
	writeSorted("finalized", s.FinalizedIDs)
	return hex.EncodeToString(h.Sum(nil))
}

// Marshaler is the contract a distributed marshalling layer must satisfy to
// hand a plan's observable state across a process boundary: take a
// content-addressed snapshot, and report a stable identity for it so
// retried deliveries can be deduplicated. Implementing the transport that
// moves a Snapshot between processes is out of scope here (§1); nothing in
// this module, kernel/engine/temporalengine included, depends on this
// interface.
type Marshaler interface {
	Dump(planID string, p *plan.Plan, seconds int64, micros int32) Snapshot
	Identity(Snapshot) string
}

// DefaultMarshaler implements Marshaler using the package-level Dump/Identity
// functions, with no transport of its own.
type DefaultMarshaler struct{}

func (DefaultMarshaler) Dump(planID string, p *plan.Plan, seconds int64, micros int32) Snapshot {
	return Dump(planID, p, seconds, micros)
}

func (DefaultMarshaler) Identity(s Snapshot) string { return s.Identity() }

var _ Marshaler = DefaultMarshaler{}

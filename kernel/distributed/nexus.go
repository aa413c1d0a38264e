package distributed

import (
	"context"
	"fmt"

	"github.com/nexus-rpc/sdk-go/nexus"
)

// SnapshotRequest is the input to the DumpOperation Nexus operation: which
// plan to snapshot, keyed by the identity a caller's own registry assigned
// it. The operation itself does not look the plan up — the actual plan
// registry is part of the out-of-scope distributed marshalling layer; this
// type only fixes the wire shape a Nexus caller and handler agree on.
type SnapshotRequest struct {
	PlanID string
}

// SnapshotLookup resolves a PlanID to a Snapshot. A real deployment wires
// this to whatever process-local or durable registry holds live plans;
// nothing in this package implements that registry.
type SnapshotLookup func(ctx context.Context, planID string) (Snapshot, error)

// NewDumpOperation builds the Nexus synchronous operation that exposes a
// plan's Snapshot across a namespace boundary, satisfying the distributed
// marshalling contract's identity requirement (the handler's response
// Identity matches what DefaultMarshaler.Identity computes for the same
// state). lookup supplies the actual plan state; this function only wires
// the Nexus request/response shape.
func NewDumpOperation(lookup SnapshotLookup) *nexus.SyncOperation[SnapshotRequest, Snapshot] {
	return nexus.NewSyncOperation("dump-plan-snapshot", func(ctx context.Context, req SnapshotRequest, opts nexus.StartOperationOptions) (Snapshot, error) {
		if lookup == nil {
			return Snapshot{}, fmt.Errorf("distributed: no snapshot lookup configured")
		}
		return lookup(ctx, req.PlanID)
	})
}

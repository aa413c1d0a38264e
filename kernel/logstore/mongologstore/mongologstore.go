// Package mongologstore provides a MongoDB-backed logstore.Store, for
// deployments where the persisted cycle log and audit log need to survive
// process restarts and be shared across nodes.
package mongologstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/taskplan/kernel/logstore"
	"github.com/taskplan/kernel/plan"
)

const (
	defaultCyclesCollection = "plan_cycles"
	defaultLogCollection    = "plan_log_entries"
	defaultOpTimeout        = 5 * time.Second
)

// Options configures the Mongo-backed logstore.
type Options struct {
	Client           *mongo.Client
	Database         string
	CyclesCollection string
	LogCollection    string
	Timeout          time.Duration
}

// Store implements logstore.Store by delegating to two Mongo collections,
// one per record kind, each document carrying a per-plan sequence number so
// load order matches append order.
type Store struct {
	cycles  *mongo.Collection
	logs    *mongo.Collection
	timeout time.Duration
}

// NewStore constructs a Store and ensures its indexes exist.
func NewStore(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	cyclesName := opts.CyclesCollection
	if cyclesName == "" {
		cyclesName = defaultCyclesCollection
	}
	logName := opts.LogCollection
	if logName == "" {
		logName = defaultLogCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		cycles:  db.Collection(cyclesName),
		logs:    db.Collection(logName),
		timeout: timeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "plan_id", Value: 1}, {Key: "seq", Value: 1}}}
	if _, err := s.cycles.Indexes().CreateOne(ctx, idx); err != nil {
		return err
	}
	_, err := s.logs.Indexes().CreateOne(ctx, idx)
	return err
}

type cycleDoc struct {
	PlanID   string             `bson:"plan_id"`
	Seq      int64              `bson:"seq"`
	Seconds  int64              `bson:"seconds"`
	Micros   int32              `bson:"micros"`
	External []externalEventDoc `bson:"external"`
}

type externalEventDoc struct {
	GeneratorID string `bson:"generator_id"`
	Context     any    `bson:"context"`
}

type logDoc struct {
	PlanID  string `bson:"plan_id"`
	Seq     int64  `bson:"seq"`
	Method  string `bson:"method"`
	Seconds int64  `bson:"seconds"`
	Micros  int32  `bson:"micros"`
	Args    []any  `bson:"args"`
}

func (s *Store) nextSeq(ctx context.Context, coll *mongo.Collection, planID string) (int64, error) {
	n, err := coll.CountDocuments(ctx, bson.D{{Key: "plan_id", Value: planID}})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// AppendCycle inserts rec as the next document for planID.
func (s *Store) AppendCycle(ctx context.Context, planID string, rec logstore.CycleRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	seq, err := s.nextSeq(ctx, s.cycles, planID)
	if err != nil {
		return err
	}
	ext := make([]externalEventDoc, len(rec.External))
	for i, ev := range rec.External {
		ext[i] = externalEventDoc{GeneratorID: string(ev.GeneratorID), Context: ev.Context}
	}
	_, err = s.cycles.InsertOne(ctx, cycleDoc{
		PlanID: planID, Seq: seq, Seconds: rec.Seconds, Micros: rec.Micros, External: ext,
	})
	return err
}

// AppendLog inserts entry as the next document for planID.
func (s *Store) AppendLog(ctx context.Context, planID string, entry plan.LogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	seq, err := s.nextSeq(ctx, s.logs, planID)
	if err != nil {
		return err
	}
	_, err = s.logs.InsertOne(ctx, logDoc{
		PlanID: planID, Seq: seq, Method: entry.Method, Seconds: entry.Seconds, Micros: entry.Micros, Args: entry.Args,
	})
	return err
}

// LoadCycles returns every cycle record for planID, ordered by seq.
func (s *Store) LoadCycles(ctx context.Context, planID string) ([]logstore.CycleRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cur, err := s.cycles.Find(ctx, bson.D{{Key: "plan_id", Value: planID}}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []logstore.CycleRecord
	for cur.Next(ctx) {
		var doc cycleDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		external := make([]plan.ExternalEvent, len(doc.External))
		for i, e := range doc.External {
			external[i] = plan.ExternalEvent{GeneratorID: plan.ID(e.GeneratorID), Context: e.Context}
		}
		out = append(out, logstore.CycleRecord{Seconds: doc.Seconds, Micros: doc.Micros, External: external})
	}
	return out, cur.Err()
}

// LoadLog returns every log entry for planID, ordered by seq.
func (s *Store) LoadLog(ctx context.Context, planID string) ([]plan.LogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cur, err := s.logs.Find(ctx, bson.D{{Key: "plan_id", Value: planID}}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []plan.LogEntry
	for cur.Next(ctx) {
		var doc logDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, plan.LogEntry{Method: doc.Method, Seconds: doc.Seconds, Micros: doc.Micros, Args: doc.Args})
	}
	return out, cur.Err()
}

var _ logstore.Store = (*Store)(nil)

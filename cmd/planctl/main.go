// Command planctl drives a single plan until SIGINT or SIGTERM using a config file
// to select the engine/queue/log-store backends, mirroring cmd/demo's
// plain wire-it-up-in-main style rather than a flag/cobra framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskplan/kernel/config"
	"github.com/taskplan/kernel/engine"
	"github.com/taskplan/kernel/engine/inmem"
	"github.com/taskplan/kernel/logstore"
	"github.com/taskplan/kernel/logstore/inmemlogstore"
	"github.com/taskplan/kernel/logstore/mongologstore"
	"github.com/taskplan/kernel/plan"
	"github.com/taskplan/kernel/queue"
	"github.com/taskplan/kernel/supervisor"
	"github.com/taskplan/kernel/telemetry"

	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults apply if omitted)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := telemetry.NewSlogLogger(nil)

	eng, err := buildEngine(cfg.Engine)
	if err != nil {
		return fmt.Errorf("planctl: build engine: %w", err)
	}
	q, err := buildQueue(cfg.Queue)
	if err != nil {
		return fmt.Errorf("planctl: build queue: %w", err)
	}
	store, err := buildStore(cfg.Log)
	if err != nil {
		return fmt.Errorf("planctl: build log store: %w", err)
	}

	p := plan.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := &supervisor.Supervisor{
		Engine: eng,
		Plan:   p,
		Queue:  q,
		Store:  store,
		PlanID: cfg.PlanID,
		Period: cfg.CyclePeriod.AsDuration(),
		Logger: logger,
	}
	return sup.Run(ctx)
}

func buildEngine(cfg config.EngineConfig) (engine.Engine, error) {
	switch cfg.Backend {
	case "", "inmem":
		return inmem.New(), nil
	case "temporal":
		return nil, fmt.Errorf("planctl: temporal backend requires kernel/engine/temporalengine, which drives by plan ID rather than the generic engine.Engine interface (see its doc comment); wire it directly in a deployment-specific main")
	default:
		return nil, fmt.Errorf("planctl: unknown engine backend %q", cfg.Backend)
	}
}

func buildQueue(cfg config.QueueConfig) (engine.ExternalQueue, error) {
	switch cfg.Backend {
	case "", "mem":
		capacity := cfg.MemCapacity
		if capacity <= 0 {
			capacity = 64
		}
		return queue.NewMemQueue(capacity), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		return queue.NewRedisQueue(rdb, cfg.Redis.Key), nil
	default:
		return nil, fmt.Errorf("planctl: unknown queue backend %q", cfg.Backend)
	}
}

func buildStore(cfg config.LogConfig) (logstore.Store, error) {
	switch cfg.Backend {
	case "", "inmem":
		return inmemlogstore.New(), nil
	case "mongo":
		client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("planctl: connect mongo: %w", err)
		}
		return mongologstore.NewStore(mongologstore.Options{
			Client:           client,
			Database:         cfg.Mongo.Database,
			CyclesCollection: cfg.Mongo.Collection,
		})
	default:
		return nil, fmt.Errorf("planctl: unknown log backend %q", cfg.Backend)
	}
}

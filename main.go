// Command dsync wires together a minimal three-node sync topology — an
// in-memory "store" node backed by the relational Cache, an "upstream"
// node backed by a JSON:API source and a "backup" node backed by a
// LocalStorage source — and runs one transform against the store on
// startup. Wiring a store, a strategy set
// and a schema from command-line flags/config files (what spec.md scopes
// out as "the CLI/build glue", §1) is left to callers embedding this
// module; this binary exists to exercise the wiring end to end the way a
// smoke test would, not to be a general-purpose CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"dsync.evalgo.org/cache"
	"dsync.evalgo.org/config"
	"dsync.evalgo.org/coordinator"
	"dsync.evalgo.org/dsynclog"
	"dsync.evalgo.org/jsonapi"
	"dsync.evalgo.org/localstore"
	"dsync.evalgo.org/model"
	"dsync.evalgo.org/op"
	"dsync.evalgo.org/source"
	"dsync.evalgo.org/strategy"
)

func planetSchema() *model.Schema {
	schema := model.NewSchema()
	schema.AddModel("planet", model.ModelSchema{
		Attributes: map[string]struct{}{"name": {}, "classification": {}},
		Relationships: map[string]model.RelationshipDescriptor{
			"moons": {Kind: model.HasManyKind, Model: "moon", Inverse: "planet", Dependent: model.DependentRemove},
		},
	})
	schema.AddModel("moon", model.ModelSchema{
		Attributes: map[string]struct{}{"name": {}},
		Relationships: map[string]model.RelationshipDescriptor{
			"planet": {Kind: model.HasOneKind, Model: "planet", Inverse: "moons"},
		},
	})
	return schema
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	svcConfig := config.LoadServiceConfig("DSYNC")
	env := config.NewEnvConfig("DSYNC")
	upstreamHost := env.GetString("UPSTREAM_HOST", "https://api.example.com")
	localStorePath := env.GetString("LOCALSTORE_PATH", "./dsync.db")

	logger := dsynclog.New(dsynclog.Config{
		Level:     dsynclog.Level(svcConfig.LogLevel),
		Format:    svcConfig.LogFormat,
		Component: "dsync",
	})
	log := dsynclog.ForComponent(logger, "main")

	schema := planetSchema()
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	c := cache.New(schema, log, cache.NewIntegrityProcessor(schema, log))
	store := source.New("store", &source.CacheBackend{Cache: c}, c, log)

	keys := model.NewKeyMap()
	upstreamSrc := jsonapi.New(jsonapi.Config{
		Host:       upstreamHost,
		MaxRetries: 3,
	}, keys, log)
	upstream := source.New("upstream", upstreamSrc, nil, log)

	db, err := localstore.Open(localStorePath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer db.Close()
	backupSrc := localstore.New(db, log)
	backup := source.New("backup", backupSrc, nil, log)

	coord := coordinator.New()
	coord.AddNode("store", store)
	coord.AddNode("upstream", upstream)
	coord.AddNode("backup", backup)

	sync := strategy.NewSync(coord, "store", "upstream", false, log)
	if err := sync.Activate(); err != nil {
		return fmt.Errorf("activating sync strategy: %w", err)
	}
	defer sync.Deactivate()

	backupSync := strategy.NewSync(coord, "store", "backup", true, log)
	if err := backupSync.Activate(); err != nil {
		return fmt.Errorf("activating backup sync strategy: %w", err)
	}
	defer backupSync.Deactivate()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec := model.NewRecord(model.Identity{Type: "planet", ID: "pluto"})
	rec.Attributes = map[string]interface{}{"name": "Pluto", "classification": "dwarf planet"}

	if _, err := store.Transform(ctx, op.New(op.NewAddRecord(rec))); err != nil {
		return fmt.Errorf("adding record: %w", err)
	}

	log.WithField("service", svcConfig.Name).Info("dsync wiring exercised successfully")
	return nil
}

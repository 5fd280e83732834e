package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/marplemr/wt-contracts/db"
	"github.com/marplemr/wt-contracts/events"
	"github.com/marplemr/wt-contracts/gate"
	"github.com/marplemr/wt-contracts/identity"
	"github.com/marplemr/wt-contracts/internal/pathutil"
	"github.com/marplemr/wt-contracts/keydir"
	"github.com/marplemr/wt-contracts/ops"
	"github.com/marplemr/wt-contracts/registry"
)

// app wires the stores, dispatcher, gate and registry service from the
// viper configuration.
type app struct {
	log  *slog.Logger
	sink events.Sink
	sdb  *sql.DB

	calls *gate.SQLiteCallStore
	reg   *registry.SQLiteStore
	svc   *registry.Service
	disp  *ops.Dispatcher
	gate  *gate.Gate
	keys  *keydir.FileDirectory
}

func newApp() (*app, error) {
	log := newLogger()

	sdb, err := db.Open(db.Config{
		DSN: viper.GetString("db.dsn"),
		SQLite: db.SQLiteConfig{
			WAL:           viper.GetBool("db.sqlite.wal"),
			BusyTimeoutMs: viper.GetInt("db.sqlite.busy_timeout_ms"),
			ForeignKeys:   viper.GetBool("db.sqlite.foreign_keys"),
		},
	})
	if err != nil {
		return nil, err
	}

	calls, err := gate.NewSQLiteCallStoreDB(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, err
	}
	reg, err := registry.NewSQLiteStoreDB(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, err
	}

	var sink events.Sink = events.NewSlogSink(log)
	jsonlPath := pathutil.ExpandHomePath(viper.GetString("audit.jsonl_path"))
	if jsonlPath != "" {
		s, err := events.NewJSONLSink(jsonlPath, viper.GetInt64("audit.rotate_max_bytes"))
		if err != nil {
			log.Warn("event_sink_error", "error", err.Error())
		} else {
			sink = s
		}
	}

	disp := ops.NewDispatcher()
	svc := registry.NewService(reg, reg, sink, log)
	if err := svc.BindOps(disp); err != nil {
		_ = sdb.Close()
		return nil, err
	}

	return &app{
		log:   log,
		sink:  sink,
		sdb:   sdb,
		calls: calls,
		reg:   reg,
		svc:   svc,
		disp:  disp,
		gate:  gate.New(calls, reg, disp, sink, log),
		keys:  keydir.NewFileDirectory(pathutil.ExpandHomePath(viper.GetString("keys.path"))),
	}, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	if a.sink != nil {
		_ = a.sink.Close()
	}
	if a.calls != nil {
		_ = a.calls.Close()
	}
	if a.reg != nil {
		_ = a.reg.Close()
	}
	if a.sdb != nil {
		_ = a.sdb.Close()
	}
}

// actingCaller resolves the --as flag into the caller identity pair.
func actingCaller() (identity.Caller, error) {
	raw := strings.TrimSpace(viper.GetString("as"))
	if raw == "" {
		return identity.Caller{}, fmt.Errorf("missing --as <address>")
	}
	addr, err := identity.ParseAddress(raw)
	if err != nil {
		return identity.Caller{}, err
	}
	return identity.Direct(addr), nil
}

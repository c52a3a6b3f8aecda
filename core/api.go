// Package core provides the engine behind the generated REST endpoints. It
// keeps a registry of named connections, each backed either by a database
// pool or by an in-memory store, and runs table operations and query graphs
// against them.
package core

import (
	"context"
	"sort"
	"sync"

	"github.com/dosco/restjin/core/internal/memdb"
	"github.com/dosco/restjin/core/internal/psql"
	"github.com/dosco/restjin/core/internal/qcode"
	"github.com/dosco/restjin/core/internal/sdata"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Pool is the database collaborator a SQL connection runs statements on.
// Rows is set for statements that return rows, InsertID and AffectedRows
// for those that do not.
type Pool interface {
	Query(ctx context.Context, text string, values []interface{}) (PoolResult, error)
}

type PoolResult struct {
	Rows         []Row
	RowCount     int
	InsertID     int64
	AffectedRows int64
}

// SchemaLoader returns the tables of a connection, usually by introspecting
// the database
type SchemaLoader func(ctx context.Context) ([]DBTable, error)

// connection holds per-connection state. Exactly one of pool and store is set.
type connection struct {
	name     string
	dbType   string
	schema   *sdata.DBSchema
	compiler *psql.Compiler
	pool     Pool
	store    *memdb.Store
}

func (c *connection) local() bool {
	return c.store != nil
}

// Engine is an instance of the engine. It holds the connections and the
// statement cache and is safe for concurrent use.
type Engine struct {
	conf  *Config
	log   *zap.SugaredLogger
	cache Cache
	sf    singleflight.Group

	mu    sync.RWMutex
	conns map[string]*connection
}

type Option func(*Engine) error

// OptionSetLogger sets the logger used by the engine
func OptionSetLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) error {
		if log != nil {
			e.log = log
		}
		return nil
	}
}

// New creates an engine with no connections
func New(conf *Config, options ...Option) (e *Engine, err error) {
	if conf == nil {
		conf = &Config{}
	}
	if err = conf.Validate(); err != nil {
		return
	}

	e = &Engine{
		conf:  conf,
		log:   zap.NewNop().Sugar(),
		conns: make(map[string]*connection),
	}

	if err = e.initCache(); err != nil {
		return
	}

	for _, op := range options {
		if err = op(e); err != nil {
			return
		}
	}
	return
}

// Connect registers a database connection. The schema is loaded once, later
// calls for a connection that is already registered return straight away and
// concurrent calls for the same name share a single load.
func (e *Engine) Connect(ctx context.Context, name, dbType string, pool Pool, load SchemaLoader) error {
	if err := ValidateDBType(dbType); err != nil {
		return err
	}
	if e.connected(name) {
		return nil
	}

	_, err, _ := e.sf.Do(name, func() (interface{}, error) {
		if e.connected(name) {
			return nil, nil
		}
		tables, err := load(ctx)
		if err != nil {
			return nil, err
		}
		schema, err := sdata.NewDBSchema(normalizeDBType(dbType), tables)
		if err != nil {
			return nil, err
		}
		e.register(&connection{
			name:     name,
			dbType:   schema.DBType(),
			schema:   schema,
			compiler: psql.NewCompiler(psql.Config{DBType: schema.DBType()}),
			pool:     pool,
		})
		e.log.Infow("connected", "connection", name, "type", schema.DBType(), "tables", len(tables))
		return nil, nil
	})
	return err
}

// ConnectLocal registers a connection backed by an in-memory store built
// from a schema file. Rows listed in the file are loaded into the store.
func (e *Engine) ConnectLocal(name, dbType string, sf *SchemaFile) error {
	if err := ValidateDBType(dbType); err != nil {
		return err
	}
	schema, err := sf.Schema(normalizeDBType(dbType))
	if err != nil {
		return err
	}

	store := memdb.NewStore(schema, memdb.WithLogger(e.log.Desugar()))
	for _, tn := range sortedKeys(sf.Seed) {
		rows := make([]memdb.Row, len(sf.Seed[tn]))
		for i, r := range sf.Seed[tn] {
			rows[i] = memdb.Row(r)
		}
		if err := store.Load(tn, rows); err != nil {
			return err
		}
	}

	e.register(&connection{
		name:     name,
		dbType:   schema.DBType(),
		schema:   schema,
		compiler: psql.NewCompiler(psql.Config{DBType: schema.DBType()}),
		store:    store,
	})
	e.log.Infow("connected", "connection", name, "type", schema.DBType(), "local", true)
	return nil
}

// Disconnect drops a connection along with its schema and, for a local
// connection, its rows
func (e *Engine) Disconnect(name string) {
	e.mu.Lock()
	delete(e.conns, name)
	e.mu.Unlock()

	e.cache.Purge()
	e.sf.Forget(name)
}

// Connections returns the registered connection names in sorted order
func (e *Engine) Connections() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.conns))
	for n := range e.conns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schema returns the schema of a connection
func (e *Engine) Schema(name string) (*DBSchema, error) {
	c, err := e.conn(name)
	if err != nil {
		return nil, err
	}
	return c.schema, nil
}

// Tables returns the tables of a connection in name order
func (e *Engine) Tables(name string) ([]*DBTable, error) {
	c, err := e.conn(name)
	if err != nil {
		return nil, err
	}
	return c.schema.Tables(), nil
}

// IsLocal reports whether a connection is backed by the in-memory store
func (e *Engine) IsLocal(name string) bool {
	c, err := e.conn(name)
	return err == nil && c.local()
}

func (e *Engine) register(c *connection) {
	e.mu.Lock()
	e.conns[c.name] = c
	e.mu.Unlock()
}

func (e *Engine) connected(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.conns[name]
	return ok
}

func (e *Engine) conn(name string) (*connection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c, ok := e.conns[name]
	if !ok {
		return nil, errUnknownConnection(name)
	}
	return c, nil
}

func (e *Engine) logIgnored(conn string, ignored []string) {
	for _, ref := range ignored {
		e.log.Debugw("ignoring unresolved reference", "connection", conn, "ref", ref)
	}
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unknownTable(name string) error {
	return qcode.NewError(qcode.KindUnknownTable, "unknown table: %s", name)
}

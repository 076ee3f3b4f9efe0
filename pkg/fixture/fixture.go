// Package fixture provides a MongoDB test fixture: an ephemeral mongod,
// a connected client, and lazily resolved handles to one configured
// database/collection pair, with deterministic cleanup.
//
// A Fixture is not safe for concurrent use beyond what its handle cache
// guards; drive it from a single test goroutine.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syntrixbase/mongofixture/internal/config"
	"github.com/syntrixbase/mongofixture/internal/logging"
	"github.com/syntrixbase/mongofixture/pkg/engine"
	"github.com/syntrixbase/mongofixture/pkg/platform"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Logger is what a fixture logs through. *slog.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// State is a fixture's lifecycle position.
type State int

const (
	Created State = iota
	Connected
	Configured
	Active
	Resetting
	Disposed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Connected:
		return "connected"
	case Configured:
		return "configured"
	case Active:
		return "active"
	case Resetting:
		return "resetting"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connection pairs the fixture's database name with its driver client so
// code under test can be pointed at the fixture.
type Connection struct {
	DatabaseName string
	Client       *mongo.Client
}

// Fixture owns one engine and one client, and operates on the collection
// named by its configuration. T is the document type.
type Fixture[T any] struct {
	mu    sync.Mutex
	state State

	instance engine.Instance
	client   Client
	identity Identity
	logger   Logger

	database   lazy[Database]
	collection lazy[Collection]
}

// New launches an engine, connects to it, then calls source once and
// resolves the identity. If anything fails after the engine started, the
// engine is stopped before New returns.
func New[T any](ctx context.Context, source ConfigSource, opts ...Option) (*Fixture[T], error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	f := &Fixture[T]{state: Created, logger: s.logger}

	f.logger.Info("Fixture: starting engine", "replica_set", s.engine.ReplicaSet, "pattern", s.engine.SearchPattern)
	instance, err := s.launcher.Launch(ctx, s.engine)
	if err != nil {
		f.logger.Error("Fixture: engine launch failed", "error", err)
		if !errors.Is(err, engine.ErrLaunch) {
			err = fmt.Errorf("%w: %w", engine.ErrLaunch, err)
		}
		return nil, err
	}
	f.instance = instance

	ready := false
	defer func() {
		if !ready {
			f.abort(ctx)
		}
	}()

	client, err := s.connector.Connect(ctx, instance.ConnectionString())
	if err != nil {
		f.logger.Error("Fixture: connect failed", "error", err)
		return nil, fmt.Errorf("connect to engine: %w", err)
	}
	f.client = client
	f.state = Connected

	var cfg Configuration
	if source != nil {
		cfg = source()
	}
	f.identity = Resolve(cfg)
	f.state = Configured

	ready = true
	return f, nil
}

// abort releases whatever construction acquired, even when ctx is done.
func (f *Fixture[T]) abort(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if f.client != nil {
		if err := f.client.Disconnect(ctx); err != nil {
			f.logger.Error("Fixture: disconnect after failed start", "error", err)
		}
	}
	if err := f.instance.Stop(ctx); err != nil {
		f.logger.Error("Fixture: stop engine after failed start", "error", err)
	}
	f.state = Disposed
}

// Identity returns the resolved database/collection pair.
func (f *Fixture[T]) Identity() Identity { return f.identity }

// State returns the current lifecycle state.
func (f *Fixture[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// ConnectionString returns the engine's URI.
func (f *Fixture[T]) ConnectionString() string { return f.instance.ConnectionString() }

// Client returns the fixture's client.
func (f *Fixture[T]) Client() Client { return f.client }

// Connection returns the database name and the underlying driver client.
// Client is nil when the fixture was built with a non-driver Connector.
func (f *Fixture[T]) Connection() Connection {
	conn := Connection{DatabaseName: f.identity.DatabaseName}
	if d, ok := f.client.(interface{ Driver() *mongo.Client }); ok {
		conn.Client = d.Driver()
	}
	return conn
}

// Insert stores one document. Driver errors are returned unwrapped.
func (f *Fixture[T]) Insert(ctx context.Context, doc T) error {
	coll, err := f.activeCollection()
	if err != nil {
		return err
	}
	return coll.InsertOne(ctx, doc)
}

// FindAll returns every document in server order. An empty collection
// yields an empty slice.
func (f *Fixture[T]) FindAll(ctx context.Context) ([]T, error) {
	coll, err := f.activeCollection()
	if err != nil {
		return nil, err
	}
	results := []T{}
	if err := coll.FindAll(ctx, &results); err != nil {
		return nil, err
	}
	if results == nil {
		results = []T{}
	}
	return results, nil
}

// Indexes lists the index descriptors on the collection.
func (f *Fixture[T]) Indexes(ctx context.Context) ([]bson.M, error) {
	coll, err := f.activeCollection()
	if err != nil {
		return nil, err
	}
	return coll.ListIndexes(ctx)
}

// IndexName is the name CreateUniqueIndexes gives the index on field.
func IndexName(label, field string) string {
	return label + "_" + field
}

// CreateUniqueIndexes builds one unique ascending index per field, named
// IndexName(label, field), in a single call. Whether a failed batch leaves
// some indexes behind is up to the server.
func (f *Fixture[T]) CreateUniqueIndexes(ctx context.Context, label string, fields []string) error {
	coll, err := f.activeCollection()
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	models := make([]mongo.IndexModel, 0, len(fields))
	for _, field := range fields {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(IndexName(label, field)),
		})
	}

	if err := coll.CreateIndexes(ctx, models); err != nil {
		f.logger.Error("Fixture: create unique indexes failed", "collection", f.identity.CollectionName, "fields", fields, "error", err)
		return fmt.Errorf("%w: %w", ErrIndexCreation, err)
	}
	return nil
}

// Reset deletes every document in the collection and blocks until the
// delete completes. Resetting an empty collection succeeds.
func (f *Fixture[T]) Reset(ctx context.Context) error {
	f.mu.Lock()
	if f.state == Disposed {
		f.mu.Unlock()
		return ErrDisposed
	}
	f.state = Resetting
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		if f.state == Resetting {
			f.state = Active
		}
		f.mu.Unlock()
	}()

	return f.reset(ctx)
}

func (f *Fixture[T]) reset(ctx context.Context) error {
	coll, err := f.collectionHandle()
	if err != nil {
		return err
	}

	f.logger.Info("Fixture: deleting all records",
		"database", f.identity.DatabaseName,
		"collection", f.identity.CollectionName)
	_, err = coll.DeleteAll(ctx)
	return err
}

// Dispose resets the collection, disconnects the client and stops the
// engine. Reset failures are logged and dropped so they cannot mask the
// test's own result. Calling Dispose again does nothing.
func (f *Fixture[T]) Dispose(ctx context.Context) error {
	f.mu.Lock()
	if f.state == Disposed {
		f.mu.Unlock()
		return nil
	}
	f.state = Resetting
	f.mu.Unlock()

	if f.identity.HasCollection() {
		if err := f.reset(ctx); err != nil {
			f.logger.Error("Fixture: reset during dispose failed", "collection", f.identity.CollectionName, "error", err)
		}
	}

	f.logger.Info("Fixture: disposing engine", "database", f.identity.DatabaseName)

	var errs []error
	if err := f.client.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnect: %w", err))
	}
	if err := f.instance.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop engine: %w", err))
	}

	f.mu.Lock()
	f.state = Disposed
	f.mu.Unlock()

	return errors.Join(errs...)
}

// activeCollection checks the fixture is usable, marks it active, and
// returns the collection handle.
func (f *Fixture[T]) activeCollection() (Collection, error) {
	f.mu.Lock()
	if f.state == Disposed {
		f.mu.Unlock()
		return nil, ErrDisposed
	}
	if f.state == Configured {
		f.state = Active
	}
	f.mu.Unlock()

	return f.collectionHandle()
}

func (f *Fixture[T]) databaseHandle() (Database, error) {
	if f.identity.DatabaseName == "" {
		f.logger.Error("Fixture: database name is empty")
		return nil, fmt.Errorf("%w: database name is empty", ErrConfiguration)
	}
	return f.database.get(func() (Database, error) {
		return f.client.Database(f.identity.DatabaseName), nil
	})
}

func (f *Fixture[T]) collectionHandle() (Collection, error) {
	if !f.identity.HasCollection() {
		f.logger.Error("Fixture: collection name is empty")
		return nil, fmt.Errorf("%w: collection name is empty", ErrConfiguration)
	}
	return f.collection.get(func() (Collection, error) {
		db, err := f.databaseHandle()
		if err != nil {
			return nil, err
		}
		return db.Collection(f.identity.CollectionName), nil
	})
}

// Option customizes New.
type Option func(*settings)

type settings struct {
	cfg       *config.Config
	logger    Logger
	launcher  engine.Launcher
	connector Connector
	engine    engine.Options
	hasEngine bool
}

// WithConfig uses cfg instead of loading configuration from disk.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithLogger replaces the configured logger.
func WithLogger(l Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithLauncher replaces the mongod process launcher.
func WithLauncher(l engine.Launcher) Option {
	return func(s *settings) { s.launcher = l }
}

// WithConnector replaces the driver connector.
func WithConnector(c Connector) Option {
	return func(s *settings) { s.connector = c }
}

// WithEngineOptions sets launch options directly, bypassing configuration
// and platform pattern lookup.
func WithEngineOptions(o engine.Options) Option {
	return func(s *settings) {
		s.engine = o
		s.hasEngine = true
	}
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		launcher:  engine.ProcessLauncher{},
		connector: MongoConnector{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg == nil && (s.logger == nil || !s.hasEngine) {
		cfg, err := config.Load("")
		if err != nil {
			return nil, err
		}
		s.cfg = cfg
	}

	if s.logger == nil {
		l, err := logging.NewLogger(s.cfg.Logging)
		if err != nil {
			return nil, err
		}
		s.logger = l
	}

	if !s.hasEngine {
		pattern, err := platform.Current()
		if err != nil {
			return nil, err
		}
		s.engine = engine.NewOptions(s.cfg, pattern)
	}
	if s.engine.Logger == nil {
		if sl, ok := s.logger.(*slog.Logger); ok {
			s.engine.Logger = sl
		}
	}
	return s, nil
}

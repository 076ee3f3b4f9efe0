package fixture

import (
	"context"
	"reflect"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/syntrixbase/mongofixture/pkg/engine"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// events records the order of side effects across fakes.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, name)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

type fakeInstance struct {
	events  *events
	uri     string
	stops   int
	stopErr error
	stopCtx error
}

func (i *fakeInstance) ConnectionString() string { return i.uri }

func (i *fakeInstance) Stop(ctx context.Context) error {
	i.stops++
	i.stopCtx = ctx.Err()
	i.events.add("stop")
	return i.stopErr
}

type fakeLauncher struct {
	instance *fakeInstance
	err      error
	calls    int
	opts     engine.Options
}

func (l *fakeLauncher) Launch(_ context.Context, opts engine.Options) (engine.Instance, error) {
	l.calls++
	l.opts = opts
	if l.err != nil {
		return nil, l.err
	}
	l.instance.events.add("launch")
	return l.instance, nil
}

type fakeConnector struct {
	client *fakeClient
	err    error
	calls  int
	uri    string
}

func (c *fakeConnector) Connect(_ context.Context, uri string) (Client, error) {
	c.calls++
	c.uri = uri
	if c.err != nil {
		return nil, c.err
	}
	c.client.events.add("connect")
	return c.client, nil
}

type fakeClient struct {
	events        *events
	databaseCalls int
	databaseNames []string
	db            *fakeDatabase
	disconnects   int
	disconnectCtx error
}

func (c *fakeClient) Database(name string) Database {
	c.databaseCalls++
	c.databaseNames = append(c.databaseNames, name)
	return c.db
}

func (c *fakeClient) Disconnect(ctx context.Context) error {
	c.disconnects++
	c.disconnectCtx = ctx.Err()
	c.events.add("disconnect")
	return nil
}

type fakeDatabase struct {
	collectionCalls int
	collectionNames []string
	coll            Collection
}

func (d *fakeDatabase) Collection(name string) Collection {
	d.collectionCalls++
	d.collectionNames = append(d.collectionNames, name)
	return d.coll
}

// memCollection keeps documents as BSON so round trips go through the
// same encoding the driver uses.
type memCollection struct {
	events    *events
	docs      []bson.Raw
	deleteErr error
	deletes   []int64
}

func (c *memCollection) InsertOne(_ context.Context, doc interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	c.docs = append(c.docs, raw)
	return nil
}

func (c *memCollection) FindAll(_ context.Context, results interface{}) error {
	slice := reflect.ValueOf(results).Elem()
	slice.Set(slice.Slice(0, 0))
	for _, raw := range c.docs {
		elem := reflect.New(slice.Type().Elem())
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return err
		}
		slice.Set(reflect.Append(slice, elem.Elem()))
	}
	return nil
}

func (c *memCollection) ListIndexes(context.Context) ([]bson.M, error) {
	return []bson.M{{"name": "_id_", "key": bson.M{"_id": int32(1)}, "v": int32(2)}}, nil
}

func (c *memCollection) CreateIndexes(context.Context, []mongo.IndexModel) error {
	return nil
}

func (c *memCollection) DeleteAll(context.Context) (int64, error) {
	if c.events != nil {
		c.events.add("reset")
	}
	if c.deleteErr != nil {
		return 0, c.deleteErr
	}
	n := int64(len(c.docs))
	c.docs = nil
	c.deletes = append(c.deletes, n)
	return n, nil
}

// mockCollection is a testify mock for asserting exact driver calls.
type mockCollection struct {
	mock.Mock
}

func (m *mockCollection) InsertOne(ctx context.Context, doc interface{}) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *mockCollection) FindAll(ctx context.Context, results interface{}) error {
	return m.Called(ctx, results).Error(0)
}

func (m *mockCollection) ListIndexes(ctx context.Context) ([]bson.M, error) {
	args := m.Called(ctx)
	indexes, _ := args.Get(0).([]bson.M)
	return indexes, args.Error(1)
}

func (m *mockCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) error {
	return m.Called(ctx, models).Error(0)
}

func (m *mockCollection) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type harness struct {
	events    *events
	instance  *fakeInstance
	launcher  *fakeLauncher
	connector *fakeConnector
	client    *fakeClient
	db        *fakeDatabase
	coll      *memCollection
}

func newHarness() *harness {
	ev := &events{}
	coll := &memCollection{events: ev}
	db := &fakeDatabase{coll: coll}
	client := &fakeClient{events: ev, db: db}
	instance := &fakeInstance{events: ev, uri: "mongodb://127.0.0.1:27999/?directConnection=true"}
	return &harness{
		events:    ev,
		instance:  instance,
		launcher:  &fakeLauncher{instance: instance},
		connector: &fakeConnector{client: client},
		client:    client,
		db:        db,
		coll:      coll,
	}
}

func (h *harness) options(extra ...Option) []Option {
	return append([]Option{
		WithLauncher(h.launcher),
		WithConnector(h.connector),
		WithEngineOptions(engine.Options{ReplicaSet: true, SearchPattern: "tools/mongodb-linux*/bin"}),
		WithLogger(discardLogger()),
	}, extra...)
}

package fixture

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client is the slice of a database client a fixture needs.
type Client interface {
	Database(name string) Database
	Disconnect(ctx context.Context) error
}

// Database hands out collections.
type Database interface {
	Collection(name string) Collection
}

// Collection is the set of operations a fixture runs against its
// collection. Errors are the driver's own.
type Collection interface {
	InsertOne(ctx context.Context, doc interface{}) error
	// FindAll decodes every document into results, which must point to a slice.
	FindAll(ctx context.Context, results interface{}) error
	ListIndexes(ctx context.Context) ([]bson.M, error)
	CreateIndexes(ctx context.Context, models []mongo.IndexModel) error
	DeleteAll(ctx context.Context) (int64, error)
}

// Connector opens a Client for a connection string.
type Connector interface {
	Connect(ctx context.Context, uri string) (Client, error)
}

// MongoConnector connects with the official driver and pings before
// returning.
type MongoConnector struct{}

func (MongoConnector) Connect(ctx context.Context, uri string) (Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return NewMongoClient(client), nil
}

// MongoClient adapts *mongo.Client to Client.
type MongoClient struct {
	client *mongo.Client
}

func NewMongoClient(client *mongo.Client) *MongoClient {
	return &MongoClient{client: client}
}

// Driver returns the wrapped driver client.
func (c *MongoClient) Driver() *mongo.Client { return c.client }

func (c *MongoClient) Database(name string) Database {
	return mongoDatabase{db: c.client.Database(name)}
}

func (c *MongoClient) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

type mongoDatabase struct {
	db *mongo.Database
}

func (d mongoDatabase) Collection(name string) Collection {
	return mongoCollection{coll: d.db.Collection(name)}
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, doc interface{}) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}

func (c mongoCollection) FindAll(ctx context.Context, results interface{}) error {
	cursor, err := c.coll.Find(ctx, bson.D{})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, results)
}

func (c mongoCollection) ListIndexes(ctx context.Context) ([]bson.M, error) {
	cursor, err := c.coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var indexes []bson.M
	if err := cursor.All(ctx, &indexes); err != nil {
		return nil, err
	}
	return indexes, nil
}

func (c mongoCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) error {
	_, err := c.coll.Indexes().CreateMany(ctx, models)
	return err
}

func (c mongoCollection) DeleteAll(ctx context.Context) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

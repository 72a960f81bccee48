package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketsync/config"
	"marketsync/series"
)

const mongoOpTimeout = 10 * time.Second

// mongoRow is the stored document shape, one document per observation
type mongoRow struct {
	DatasetID string             `bson:"dataset_id"`
	TimeMs    int64              `bson:"time"`
	Values    map[string]float64 `bson:"values"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

// MongoBackend stores datasets in MongoDB, one collection per sub with
// documents keyed by (dataset_id, time)
type MongoBackend struct {
	client   *mongo.Client
	database string
}

// mongoSettings resolves the connection settings: per-task config keys win,
// then the MONGODB_* environment settings, then the local defaults
func mongoSettings(cfg map[string]string) (string, string) {
	uri := cfg["uri"]
	database := cfg["database"]
	if config.AppConfig != nil {
		if uri == "" {
			uri = config.AppConfig.MongoDBURI
		}
		if database == "" {
			database = config.AppConfig.MongoDBDatabase
		}
	}
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	if database == "" {
		database = "marketsync"
	}
	return uri, database
}

// NewMongoBackend connects to MongoDB. config["uri"] and config["database"]
// fall back to the MONGODB_URI / MONGODB_DATABASE environment settings.
func NewMongoBackend(cfg map[string]string) (Backend, error) {
	uri, database := mongoSettings(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Printf("✅ MongoDB storage connected: database %s", database)
	return &MongoBackend{client: client, database: database}, nil
}

// Name returns the backend name
func (b *MongoBackend) Name() string {
	return "MongoDB"
}

func (b *MongoBackend) collection(sub string) *mongo.Collection {
	return b.client.Database(b.database).Collection(sub)
}

// Save upserts every row of the table into the sub's collection
func (b *MongoBackend) Save(id, sub string, table series.Table) error {
	if table.IsEmpty() {
		log.Printf("⚠️ Skipping save of empty table for %s/%s", sub, id)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	coll := b.collection(sub)
	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(table))
	for _, row := range table {
		doc := mongoRow{DatasetID: id, TimeMs: row.TimeMs, Values: row.Values, UpdatedAt: now}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"dataset_id": id, "time": row.TimeMs}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := coll.BulkWrite(ctx, models, opts); err != nil {
		return fmt.Errorf("failed to save dataset %s to MongoDB: %w", id, err)
	}
	return nil
}

// Load reads all rows of a dataset ordered by time
func (b *MongoBackend) Load(id, sub string) (series.Table, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "time", Value: 1}})
	cursor, err := b.collection(sub).Find(ctx, bson.M{"dataset_id": id}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset %s: %w", id, err)
	}
	defer cursor.Close(ctx)

	var table series.Table
	for cursor.Next(ctx) {
		var doc mongoRow
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		table = append(table, series.Row{TimeMs: doc.TimeMs, Values: doc.Values})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dataset %s: %w", id, err)
	}
	if table.IsEmpty() {
		return nil, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, sub, id)
	}
	return table, nil
}

// Exists reports whether any document is stored for the dataset
func (b *MongoBackend) Exists(id, sub string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	count, err := b.collection(sub).CountDocuments(ctx, bson.M{"dataset_id": id},
		options.Count().SetLimit(1))
	return err == nil && count > 0
}

// Delete removes all documents for a dataset
func (b *MongoBackend) Delete(id, sub string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := b.collection(sub).DeleteMany(ctx, bson.M{"dataset_id": id}); err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", id, err)
	}
	return nil
}

// List aggregates dataset ids per collection. An empty sub scans every
// collection in the database.
func (b *MongoBackend) List(sub string) ([]DatasetInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var subs []string
	if sub != "" {
		subs = []string{sub}
	} else {
		names, err := b.client.Database(b.database).ListCollectionNames(ctx, bson.M{})
		if err != nil {
			return nil, fmt.Errorf("failed to list collections: %w", err)
		}
		subs = names
	}

	var infos []DatasetInfo
	for _, s := range subs {
		pipeline := mongo.Pipeline{
			{{Key: "$group", Value: bson.M{
				"_id":      "$dataset_id",
				"rows":     bson.M{"$sum": 1},
				"modified": bson.M{"$max": "$updated_at"},
			}}},
		}
		cursor, err := b.collection(s).Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate collection %s: %w", s, err)
		}
		var results []struct {
			ID       string    `bson:"_id"`
			Rows     int64     `bson:"rows"`
			Modified time.Time `bson:"modified"`
		}
		if err := cursor.All(ctx, &results); err != nil {
			return nil, fmt.Errorf("failed to read aggregation for %s: %w", s, err)
		}
		for _, r := range results {
			infos = append(infos, DatasetInfo{ID: r.ID, Sub: s, Rows: r.Rows, Modified: r.Modified})
		}
	}
	return infos, nil
}

// TimeRangeOf returns the min and max stored timestamps for a dataset
func (b *MongoBackend) TimeRangeOf(id, sub string) (int64, int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	var first, last mongoRow
	coll := b.collection(sub)
	err := coll.FindOne(ctx, bson.M{"dataset_id": id},
		options.FindOne().SetSort(bson.D{{Key: "time", Value: 1}})).Decode(&first)
	if err == mongo.ErrNoDocuments {
		return 0, 0, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, sub, id)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query time range for %s: %w", id, err)
	}
	err = coll.FindOne(ctx, bson.M{"dataset_id": id},
		options.FindOne().SetSort(bson.D{{Key: "time", Value: -1}})).Decode(&last)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query time range for %s: %w", id, err)
	}
	return first.TimeMs, last.TimeMs, nil
}

// Close disconnects the client
func (b *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	return b.client.Disconnect(ctx)
}

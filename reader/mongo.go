package reader

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vegasq/aggcat/pipeline"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoSource serves the collections of one MongoDB database. Each document
// becomes a record with fields in document order.
type MongoSource struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// OpenMongo connects to uri and selects database.
func OpenMongo(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoSource, error) {
	if database == "" {
		return nil, fmt.Errorf("mongo source needs a database name")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("connecting to mongo", slog.String("database", database))

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoSource{client: client, db: client.Database(database), logger: logger}, nil
}

// FetchAll returns every document of the collection.
func (s *MongoSource) FetchAll(ctx context.Context, table string) (pipeline.Table, error) {
	s.logger.Debug("finding documents", slog.String("collection", table))

	cursor, err := s.db.Collection(table).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	out := pipeline.Table{}
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		out = append(out, documentRecord(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

// documentRecord converts a BSON document to a record.
func documentRecord(doc bson.D) *pipeline.Record {
	rec := pipeline.NewRecord()
	for _, elem := range doc {
		rec.Set(elem.Key, bsonValue(elem.Value))
	}
	return rec
}

// bsonValue maps BSON values onto record values. Arrays become lists so
// they can be unwound; embedded documents become their relaxed extended
// JSON text.
func bsonValue(v any) any {
	switch val := v.(type) {
	case nil, bson.Null, bson.Undefined:
		return nil
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC()
	case bson.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case bson.Decimal128:
		f, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return val.String()
		}
		return f
	case bson.Binary:
		return val.Data
	case bson.Regex:
		return val.Pattern
	case bson.Symbol:
		return string(val)
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = bsonValue(e)
		}
		return out
	case bson.D:
		b, err := bson.MarshalExtJSON(val, false, false)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
	return v
}

// Tables lists the collection names of the database.
func (s *MongoSource) Tables(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

// Close disconnects the client.
func (s *MongoSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

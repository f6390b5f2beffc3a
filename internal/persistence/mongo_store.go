package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/fluxnode/pkg/api"
)

const mongoTimeout = 5 * time.Second

// MongoStore is a RegistryStore and TraceStore backed by MongoDB. Records are
// keyed by task id in one collection; traces are appended to another.
type MongoStore struct {
	records *mongo.Collection
	traces  *mongo.Collection
}

var (
	_ RegistryStore = (*MongoStore)(nil)
	_ TraceStore    = (*MongoStore)(nil)
)

// NewMongoStore creates a Mongo-backed store. dbName defaults to "fluxnode".
// The collections are "optimization_records" and "trace_entries".
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	if dbName == "" {
		dbName = "fluxnode"
	}
	db := client.Database(dbName)
	return &MongoStore{
		records: db.Collection("optimization_records"),
		traces:  db.Collection("trace_entries"),
	}
}

// EnsureIndexes creates the task id index on the trace collection.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()
	_, err := s.traces.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "task_id", Value: 1}, {Key: "_id", Value: 1}},
	})
	return err
}

func (s *MongoStore) SaveRecord(ctx context.Context, rec api.OptimizationRecord) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()
	_, err := s.records.ReplaceOne(ctx, bson.M{"_id": rec.TaskID}, rec, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetRecord(ctx context.Context, taskID string) (api.OptimizationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	var rec api.OptimizationRecord
	err := s.records.FindOne(ctx, bson.M{"_id": taskID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return api.OptimizationRecord{}, ErrRecordNotFound
		}
		return api.OptimizationRecord{}, err
	}
	return rec, nil
}

// ListRecords returns matching records ordered by task id.
func (s *MongoStore) ListRecords(ctx context.Context, filter RegistryFilter) ([]api.OptimizationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*mongoTimeout)
	defer cancel()

	bfilter := bson.M{}
	if filter.SignatureHash != "" {
		bfilter["signature_hash"] = filter.SignatureHash
	}
	if filter.InstructionHash != "" {
		bfilter["instruction_hash"] = filter.InstructionHash
	}

	cur, err := s.records.Find(ctx, bfilter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.OptimizationRecord
	for cur.Next(ctx) {
		var rec api.OptimizationRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) DeleteRecord(ctx context.Context, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()
	res, err := s.records.DeleteOne(ctx, bson.M{"_id": taskID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// mongoTraceDoc stores inputs and outputs as JSON so arbitrary values
// survive the round trip unchanged.
type mongoTraceDoc struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Entry   api.TraceEntry     `bson:",inline"`
	Inputs  []byte             `bson:"inputs,omitempty"`
	Outputs []byte             `bson:"outputs,omitempty"`
}

func (s *MongoStore) AppendTraces(ctx context.Context, entries []api.TraceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]any, 0, len(entries))
	for _, e := range entries {
		in, err := EncodeValue(e.Inputs)
		if err != nil {
			return err
		}
		out, err := EncodeValue(e.Outputs)
		if err != nil {
			return err
		}
		docs = append(docs, mongoTraceDoc{
			ID:      primitive.NewObjectID(),
			Entry:   e,
			Inputs:  in,
			Outputs: out,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()
	_, err := s.traces.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return err
}

func (s *MongoStore) ListTraces(ctx context.Context, taskID string) ([]api.TraceEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*mongoTimeout)
	defer cancel()

	cur, err := s.traces.Find(ctx, bson.M{"task_id": taskID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.TraceEntry
	for cur.Next(ctx) {
		var doc mongoTraceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		e := doc.Entry
		if e.Inputs, err = DecodeValue(doc.Inputs); err != nil {
			return nil, err
		}
		if e.Outputs, err = DecodeValue(doc.Outputs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

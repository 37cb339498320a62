package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pfsync/models"
)

const idStreamBatchSize = 5000

// MongoStore holds the listing collection and the agent collection whose
// embedded listing arrays the linker and cleanup maintain. All mutation
// is expressed as targeted per-key operations so re-running a pipeline
// after a partial failure is always safe.
type MongoStore struct {
	client   *mongo.Client
	listings *mongo.Collection
	agents   *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:   client,
		listings: db.Collection("properties"),
		agents:   db.Collection("agents"),
	}

	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{store.listings, mongo.IndexModel{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{store.agents, mongo.IndexModel{
			Keys: bson.D{{Key: "email", Value: 1}},
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			log.Printf("Warning: failed to create index on %s: %v", idx.coll.Name(), err)
		}
	}

	return store, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// ExistingPublishDates returns, for every given id already in the store,
// its stored raw publish date. Presence in the map is the existence check
// the update policy runs on; the value feeds the publish-date patch rule.
func (s *MongoStore) ExistingPublishDates(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	cursor, err := s.listings.Find(ctx,
		bson.M{"id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"_id": 0, "id": 1, "created_at": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("load existing listings: %w", err)
	}
	defer cursor.Close(ctx)

	existing := make(map[string]string)
	for cursor.Next(ctx) {
		var doc struct {
			ID        string `bson:"id"`
			CreatedAt string `bson:"created_at"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode existing listing: %w", err)
		}
		existing[doc.ID] = doc.CreatedAt
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing listings: %w", err)
	}
	return existing, nil
}

// ListingWrite is one decided write against the listing collection.
// PatchOnly overwrites nothing but the raw publish date.
type ListingWrite struct {
	Listing   *models.Listing
	PatchOnly bool
}

// BulkFailure is one record that the batch write rejected.
type BulkFailure struct {
	ID  string
	Err string
}

// BulkResult reports the outcome of one unordered batch write.
type BulkResult struct {
	Matched  int64
	Modified int64
	Upserted int64
	Failures []BulkFailure
}

// BulkUpsertListings applies all decided writes as a single unordered
// bulk operation: one malformed record must not block unrelated writes.
// Per-record failures come back in the result instead of as an error.
func (s *MongoStore) BulkUpsertListings(ctx context.Context, writes []ListingWrite) (*BulkResult, error) {
	if len(writes) == 0 {
		return &BulkResult{}, nil
	}

	result := &BulkResult{}
	writeModels := make([]mongo.WriteModel, 0, len(writes))
	modelIDs := make([]string, 0, len(writes))

	for _, w := range writes {
		if w.PatchOnly {
			writeModels = append(writeModels, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"id": w.Listing.ID}).
				SetUpdate(bson.M{"$set": bson.M{"created_at": w.Listing.PublishedAtRaw}}))
			modelIDs = append(modelIDs, w.Listing.ID)
			continue
		}
		doc, err := listingSetDoc(w.Listing)
		if err != nil {
			result.Failures = append(result.Failures, BulkFailure{ID: w.Listing.ID, Err: err.Error()})
			continue
		}
		writeModels = append(writeModels, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": w.Listing.ID}).
			SetUpdate(bson.M{
				"$set":         doc,
				"$setOnInsert": bson.M{"id": w.Listing.ID},
			}).
			SetUpsert(true))
		modelIDs = append(modelIDs, w.Listing.ID)
	}
	if len(writeModels) == 0 {
		return result, nil
	}

	res, err := s.listings.BulkWrite(ctx, writeModels, options.BulkWrite().SetOrdered(false))
	if res != nil {
		result.Matched = res.MatchedCount
		result.Modified = res.ModifiedCount
		result.Upserted = res.UpsertedCount
	}
	if err != nil {
		var bwe mongo.BulkWriteException
		if !errors.As(err, &bwe) {
			return nil, fmt.Errorf("bulk upsert listings: %w", err)
		}
		for _, we := range bwe.WriteErrors {
			id := "unknown"
			if we.Index >= 0 && we.Index < len(modelIDs) {
				id = modelIDs[we.Index]
			}
			result.Failures = append(result.Failures, BulkFailure{ID: id, Err: we.Message})
		}
	}
	return result, nil
}

// listingSetDoc marshals a listing for $set, dropping the immutable id
// so it never conflicts with $setOnInsert.
func listingSetDoc(l *models.Listing) (bson.M, error) {
	raw, err := bson.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal listing: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal listing doc: %w", err)
	}
	delete(doc, "id")
	return doc, nil
}

// FindAgentByEmail resolves an active agent by normalized email. A nil
// agent with nil error means no match, which the linker treats as an
// expected roster gap, not a failure.
func (s *MongoStore) FindAgentByEmail(ctx context.Context, email string) (*models.AgentRef, error) {
	var agent models.AgentRef
	err := s.agents.FindOne(ctx, bson.M{"email": email, "isActive": true}).Decode(&agent)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find agent by email: %w", err)
	}
	return &agent, nil
}

// UpsertAgentListing adds or replaces one listing summary in the agent's
// embedded array, keyed by propertyId. The match-existing-element-or-push
// two-step keeps concurrent linkers last-write-wins per listing id rather
// than per whole array; the array itself is never read-modified-written.
func (s *MongoStore) UpsertAgentListing(ctx context.Context, agentID primitive.ObjectID, summary models.AgentListingSummary) (updated bool, err error) {
	res, err := s.agents.UpdateOne(ctx,
		bson.M{"_id": agentID, "properties.propertyId": summary.PropertyID},
		bson.M{"$set": bson.M{"properties.$": summary}},
	)
	if err != nil {
		return false, fmt.Errorf("update agent listing: %w", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	_, err = s.agents.UpdateOne(ctx,
		bson.M{"_id": agentID},
		bson.M{"$push": bson.M{"properties": summary}},
	)
	if err != nil {
		return false, fmt.Errorf("append agent listing: %w", err)
	}
	return false, nil
}

// StreamListingIDs walks every stored listing id through fn via a cursor,
// never materializing the whole store. Returns the number of documents
// scanned.
func (s *MongoStore) StreamListingIDs(ctx context.Context, fn func(id string) error) (int, error) {
	cursor, err := s.listings.Find(ctx, bson.D{},
		options.Find().
			SetProjection(bson.M{"_id": 0, "id": 1}).
			SetBatchSize(idStreamBatchSize),
	)
	if err != nil {
		return 0, fmt.Errorf("open listing id cursor: %w", err)
	}
	defer cursor.Close(ctx)

	scanned := 0
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return scanned, fmt.Errorf("decode listing id: %w", err)
		}
		scanned++
		if err := fn(doc.ID); err != nil {
			return scanned, err
		}
	}
	if err := cursor.Err(); err != nil {
		return scanned, fmt.Errorf("iterate listing ids: %w", err)
	}
	return scanned, nil
}

// DeleteListingsByIDs removes one chunk of listings.
func (s *MongoStore) DeleteListingsByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.listings.DeleteMany(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("delete listings: %w", err)
	}
	return res.DeletedCount, nil
}

// PullAgentListings removes the given listing ids from every agent's
// embedded listing array. Returns the number of agent documents modified.
func (s *MongoStore) PullAgentListings(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.agents.UpdateMany(ctx,
		bson.M{},
		bson.M{"$pull": bson.M{"properties": bson.M{"propertyId": bson.M{"$in": ids}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("unlink agent listings: %w", err)
	}
	return res.ModifiedCount, nil
}

package mongotracking

import (
	"context"
	"time"

	"github.com/BearBump/CargoTrack/internal/models"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName = "tracking_records"
	maxCASAttempts = 10
)

// ErrConflict — запись слишком часто меняется параллельно, CAS не прошёл.
var ErrConflict = errors.New("tracking update conflict")

type Storage struct {
	client *mongo.Client
	col    *mongo.Collection
}

func New(ctx context.Context, uri, dbName string) (*Storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongo")
	}
	s := NewWithDatabase(client.Database(dbName))
	s.client = client
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func NewWithDatabase(db *mongo.Database) *Storage {
	return &Storage{col: db.Collection(collectionName)}
}

func (s *Storage) Close() {
	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.client.Disconnect(ctx)
	}
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "overall_status", Value: 1}}},
	})
	return errors.Wrap(err, "create indexes")
}

func (s *Storage) CreateTracking(ctx context.Context, rec *models.TrackingRecord) error {
	doc := *rec
	if doc.Comments == nil {
		doc.Comments = []models.Comment{}
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrTrackingExists
		}
		return errors.Wrap(err, "insert tracking")
	}
	return nil
}

func (s *Storage) GetTracking(ctx context.Context, id string) (*models.TrackingRecord, error) {
	return s.find(ctx, id)
}

func (s *Storage) ListTrackings(ctx context.Context, f models.TrackingFilter) ([]*models.TrackingRecord, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["overall_status"] = f.Status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(f.Limit))

	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find trackings")
	}
	defer cur.Close(ctx)

	out := make([]*models.TrackingRecord, 0, f.Limit)
	for cur.Next(ctx) {
		var rec models.TrackingRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, errors.Wrap(err, "decode tracking")
		}
		out = append(out, &rec)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, "cursor")
	}
	return out, nil
}

// UpdateTracking is an optimistic critical section: the write only lands if
// the revision read is still current, otherwise apply runs again on a fresh copy.
func (s *Storage) UpdateTracking(ctx context.Context, id string, apply func(rec *models.TrackingRecord) error) (*models.TrackingRecord, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		rec, err := s.find(ctx, id)
		if err != nil {
			return nil, err
		}
		prev := rec.Revision

		if err := apply(rec); err != nil {
			return nil, err
		}
		rec.Revision = prev + 1

		// access_count не трогаем: его инкрементит GetTrackingDetails отдельно.
		res, err := s.col.UpdateOne(ctx,
			bson.M{"_id": id, "revision": prev},
			bson.M{"$set": bson.M{
				"document_reference":    rec.DocumentReference,
				"overall_status":        rec.OverallStatus,
				"steps":                 rec.Steps,
				"comments":              rec.Comments,
				"delivery_confirmation": rec.DeliveryConfirmation,
				"public_tracking_link":  rec.PublicTrackingLink,
				"last_updated":          rec.LastUpdated,
				"revision":              rec.Revision,
			}},
		)
		if err != nil {
			return nil, errors.Wrap(err, "update tracking")
		}
		if res.MatchedCount == 1 {
			return rec, nil
		}
	}
	return nil, errors.Wrapf(ErrConflict, "tracking %s", id)
}

func (s *Storage) IncrementAccessCount(ctx context.Context, id string) (int64, error) {
	var rec models.TrackingRecord
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"access_count": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, models.ErrTrackingNotFound
		}
		return 0, errors.Wrap(err, "increment access count")
	}
	return rec.AccessCount, nil
}

func (s *Storage) find(ctx context.Context, id string) (*models.TrackingRecord, error) {
	var rec models.TrackingRecord
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrTrackingNotFound
		}
		return nil, errors.Wrap(err, "find tracking")
	}
	if rec.Comments == nil {
		rec.Comments = []models.Comment{}
	}
	return &rec, nil
}

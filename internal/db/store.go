package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ruby4mag/firewatch-backend/internal/metrics"
	"github.com/ruby4mag/firewatch-backend/internal/models"
)

// ErrNotFound is returned when an id does not resolve to a stored report.
// Ids that are not valid ObjectIDs cannot resolve either.
var ErrNotFound = errors.New("report not found")

// Store persists fire reports.
type Store interface {
	Create(ctx context.Context, r *models.FireReport) (string, error)
	List(ctx context.Context) ([]models.FireReport, error)
	Get(ctx context.Context, id string) (*models.FireReport, error)
	Update(ctx context.Context, id string, u models.ReportUpdate) (*models.FireReport, error)
	Delete(ctx context.Context, id string) error
}

// ReportStore is the MongoDB implementation of Store.
type ReportStore struct {
	coll *mongo.Collection
}

func NewReportStore(coll *mongo.Collection) *ReportStore {
	return &ReportStore{coll: coll}
}

// EnsureIndexes creates the index backing newest-first listing.
func (s *ReportStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	return err
}

// Create inserts r, sets r.ID and returns it.
func (s *ReportStore) Create(ctx context.Context, r *models.FireReport) (id string, err error) {
	defer func() { observe("create", err) }()

	r.ID = ""
	res, err := s.coll.InsertOne(ctx, r)
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("insert report: unexpected id type %T", res.InsertedID)
	}
	r.ID = oid.Hex()
	return r.ID, nil
}

// List returns every report, newest first. Reports written before
// created_at existed fall back to their display timestamp.
func (s *ReportStore) List(ctx context.Context) (reports []models.FireReport, err error) {
	defer func() { observe("list", err) }()

	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "timestamp", Value: -1},
	})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find reports: %w", err)
	}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	if reports == nil {
		reports = []models.FireReport{}
	}
	return reports, nil
}

func (s *ReportStore) Get(ctx context.Context, id string) (r *models.FireReport, err error) {
	defer func() { observe("get", err) }()

	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var report models.FireReport
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&report); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find report %s: %w", id, err)
	}
	return &report, nil
}

// Update applies u in a single write and returns the stored result. The
// count and its alarm level always travel in the same $set.
func (s *ReportStore) Update(ctx context.Context, id string, u models.ReportUpdate) (r *models.FireReport, err error) {
	defer func() { observe("update", err) }()

	if u.Empty() {
		return nil, models.ErrEmptyUpdate
	}
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var report models.FireReport
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M(u.Fields())}, opts).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update report %s: %w", id, err)
	}
	return &report, nil
}

func (s *ReportStore) Delete(ctx context.Context, id string) (err error) {
	defer func() { observe("delete", err) }()

	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func observe(op string, err error) {
	result := metrics.Result(err)
	if errors.Is(err, ErrNotFound) {
		result = "not_found"
	}
	metrics.ReportOperationsTotal.WithLabelValues(op, result).Inc()
}

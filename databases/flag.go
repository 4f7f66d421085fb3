package databases

// go generate: mockery --name FlagDatabase

import (
	"context"
	"iter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/deepshield/deepshield-api/models"
)

const flagName = "content_flags"

// FlagDatabase contains the methods to use with the content flag database
type FlagDatabase interface {
	FindOne(ctx context.Context, id string) (*models.ContentFlag, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.ContentFlag, error]
	InsertOne(ctx context.Context, flag models.ContentFlag) error
	CompareAndSetStatus(ctx context.Context, id string, from models.FlagStatus, review models.Review) (*models.ContentFlag, error)
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)
}

type flagDatabase struct {
	db DatabaseHelper
}

// NewFlagDatabase initializes a new instance of flag database with the provided db connection
func NewFlagDatabase(db DatabaseHelper) FlagDatabase {
	return &flagDatabase{
		db: db,
	}
}

func (f *flagDatabase) FindOne(ctx context.Context, id string) (*models.ContentFlag, error) {
	flag := &models.ContentFlag{}
	err := f.db.Collection(flagName).FindOne(ctx, bson.M{"_id": id}).Decode(flag)
	if err != nil {
		return nil, err
	}
	return flag, nil
}

func (f *flagDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.ContentFlag, error] {
	return iterate[models.ContentFlag](ctx, func() (CursorHelper, error) {
		return f.db.Collection(flagName).Find(ctx, filter, findOpts(opts)...)
	})
}

func (f *flagDatabase) InsertOne(ctx context.Context, flag models.ContentFlag) error {
	_, err := f.db.Collection(flagName).InsertOne(ctx, flag)
	return err
}

// CompareAndSetStatus applies review only if the flag is still in status
// from. It returns mongo.ErrNoDocuments when the id is unknown or the
// status has moved on.
func (f *flagDatabase) CompareAndSetStatus(ctx context.Context, id string, from models.FlagStatus, review models.Review) (*models.ContentFlag, error) {
	flag := &models.ContentFlag{}
	err := f.db.Collection(flagName).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		reviewUpdate(review),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(flag)
	if err != nil {
		return nil, err
	}
	return flag, nil
}

func (f *flagDatabase) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	return f.db.Collection(flagName).CountDocuments(ctx, filter)
}

func reviewUpdate(review models.Review) bson.M {
	return bson.M{"$set": bson.M{
		"status":     review.Status,
		"reviewedBy": review.ReviewedBy,
		"reviewedAt": review.ReviewedAt,
	}}
}

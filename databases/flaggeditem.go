package databases

// go generate: mockery --name FlaggedItemDatabase

import (
	"context"
	"iter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/deepshield/deepshield-api/models"
)

const flaggedItemName = "flagged_items"

// FlaggedItemDatabase contains the methods to use with the flagged item database
type FlaggedItemDatabase interface {
	FindOne(ctx context.Context, id string) (*models.FlaggedItem, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.FlaggedItem, error]
	InsertOne(ctx context.Context, item models.FlaggedItem) error
	CompareAndSetStatus(ctx context.Context, id string, from models.FlagStatus, review models.Review) (*models.FlaggedItem, error)
}

type flaggedItemDatabase struct {
	db DatabaseHelper
}

// NewFlaggedItemDatabase initializes a new instance of flagged item database with the provided db connection
func NewFlaggedItemDatabase(db DatabaseHelper) FlaggedItemDatabase {
	return &flaggedItemDatabase{
		db: db,
	}
}

func (f *flaggedItemDatabase) FindOne(ctx context.Context, id string) (*models.FlaggedItem, error) {
	item := &models.FlaggedItem{}
	err := f.db.Collection(flaggedItemName).FindOne(ctx, bson.M{"_id": id}).Decode(item)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (f *flaggedItemDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.FlaggedItem, error] {
	return iterate[models.FlaggedItem](ctx, func() (CursorHelper, error) {
		return f.db.Collection(flaggedItemName).Find(ctx, filter, findOpts(opts)...)
	})
}

func (f *flaggedItemDatabase) InsertOne(ctx context.Context, item models.FlaggedItem) error {
	_, err := f.db.Collection(flaggedItemName).InsertOne(ctx, item)
	return err
}

func (f *flaggedItemDatabase) CompareAndSetStatus(ctx context.Context, id string, from models.FlagStatus, review models.Review) (*models.FlaggedItem, error) {
	item := &models.FlaggedItem{}
	err := f.db.Collection(flaggedItemName).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		reviewUpdate(review),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(item)
	if err != nil {
		return nil, err
	}
	return item, nil
}

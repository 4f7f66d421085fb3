package databases

// go generate: mockery --name KYCDatabase

import (
	"context"
	"iter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/deepshield/deepshield-api/models"
)

const kycName = "kyc_requests"

// KYCDatabase contains the methods to use with the kyc request database
type KYCDatabase interface {
	FindOne(ctx context.Context, id string) (*models.KYCRequest, error)
	FindPendingByUser(ctx context.Context, userID string) (*models.KYCRequest, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.KYCRequest, error]
	InsertOne(ctx context.Context, req models.KYCRequest) error
	CompareAndSetStatus(ctx context.Context, id string, from models.KYCStatus, review models.KYCReview) (*models.KYCRequest, error)
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)
}

type kycDatabase struct {
	db DatabaseHelper
}

// NewKYCDatabase initializes a new instance of kyc database with the provided db connection
func NewKYCDatabase(db DatabaseHelper) KYCDatabase {
	return &kycDatabase{
		db: db,
	}
}

func (k *kycDatabase) FindOne(ctx context.Context, id string) (*models.KYCRequest, error) {
	return k.findOne(ctx, bson.M{"_id": id})
}

func (k *kycDatabase) FindPendingByUser(ctx context.Context, userID string) (*models.KYCRequest, error) {
	return k.findOne(ctx, bson.M{"userId": userID, "status": models.KYCPending})
}

func (k *kycDatabase) findOne(ctx context.Context, filter interface{}) (*models.KYCRequest, error) {
	req := &models.KYCRequest{}
	err := k.db.Collection(kycName).FindOne(ctx, filter).Decode(req)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (k *kycDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.KYCRequest, error] {
	return iterate[models.KYCRequest](ctx, func() (CursorHelper, error) {
		return k.db.Collection(kycName).Find(ctx, filter, findOpts(opts)...)
	})
}

// InsertOne returns ErrDuplicate when the user already has a pending request
func (k *kycDatabase) InsertOne(ctx context.Context, req models.KYCRequest) error {
	_, err := k.db.Collection(kycName).InsertOne(ctx, req)
	return err
}

func (k *kycDatabase) CompareAndSetStatus(ctx context.Context, id string, from models.KYCStatus, review models.KYCReview) (*models.KYCRequest, error) {
	set := bson.M{
		"status":     review.Status,
		"reviewedBy": review.ReviewedBy,
		"reviewedAt": review.ReviewedAt,
	}
	if review.RejectionReason != "" {
		set["rejectionReason"] = review.RejectionReason
	}
	req := &models.KYCRequest{}
	err := k.db.Collection(kycName).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(req)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (k *kycDatabase) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	return k.db.Collection(kycName).CountDocuments(ctx, filter)
}

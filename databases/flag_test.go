package databases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/deepshield/deepshield-api/config"
	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/databases/mocks"
	"github.com/deepshield/deepshield-api/models"
)

func TestNewFlagDatabase(t *testing.T) {
	t.Setenv("DB_URI", "mongodb://127.0.0.1:27017")
	t.Setenv("DB_NAME", "test")
	conf := config.New()

	dbClient, err := databases.NewClient(conf)
	assert.NoError(t, err)

	db := databases.NewDatabase(conf, dbClient)

	flagDB := databases.NewFlagDatabase(db)

	assert.NotEmpty(t, flagDB)
}

func TestFlagDatabase_FindOne(t *testing.T) {

	// define variables for interfaces
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelperErr databases.SingleResultHelper
	var srHelperCorrect databases.SingleResultHelper

	// set interfaces implementation to mocked structures
	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelperErr = &mocks.SingleResultHelper{}
	srHelperCorrect = &mocks.SingleResultHelper{}

	srHelperErr.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(mongo.ErrNoDocuments)

	srHelperCorrect.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.ContentFlag)
		arg.ID = "f1"
		arg.Status = models.StatusPending
	})

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": "zzz"}).
		Return(srHelperErr)

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": "f1"}).
		Return(srHelperCorrect)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "content_flags").Return(collectionHelper)

	flagDba := databases.NewFlagDatabase(dbHelper)

	flag, err := flagDba.FindOne(context.Background(), "zzz")
	assert.Nil(t, flag)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	flag, err = flagDba.FindOne(context.Background(), "f1")
	assert.NoError(t, err)
	assert.Equal(t, &models.ContentFlag{ID: "f1", Status: models.StatusPending}, flag)
}

func TestFlagDatabase_FindIsRestartable(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	flags := []interface{}{
		models.ContentFlag{ID: "a", CreatedAt: t0},
		models.ContentFlag{ID: "b", CreatedAt: t0.Add(time.Minute)},
	}
	first := mocks.NewCursor(flags...)
	second := mocks.NewCursor(flags...)

	collectionHelper.On("Find", mock.Anything, bson.M{}).Return(first, nil).Once()
	collectionHelper.On("Find", mock.Anything, bson.M{}).Return(second, nil).Once()
	dbHelper.On("Collection", "content_flags").Return(collectionHelper)

	seq := databases.NewFlagDatabase(dbHelper).Find(context.Background(), bson.M{})

	got, err := databases.Collect(seq)
	require.NoError(t, err)
	again, err := databases.Collect(seq)
	require.NoError(t, err)

	assert.Equal(t, got, again)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.True(t, first.Closed)
	assert.True(t, second.Closed)
	collectionHelper.AssertNumberOfCalls(t, "Find", 2)
}

func TestFlagDatabase_FindStopsEarly(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	cursor := mocks.NewCursor(models.ContentFlag{ID: "a"}, models.ContentFlag{ID: "b"})
	collectionHelper.On("Find", mock.Anything, bson.M{}).Return(cursor, nil)
	dbHelper.On("Collection", "content_flags").Return(collectionHelper)

	var seen []string
	for f, err := range databases.NewFlagDatabase(dbHelper).Find(context.Background(), bson.M{}) {
		require.NoError(t, err)
		seen = append(seen, f.ID)
		break
	}

	assert.Equal(t, []string{"a"}, seen)
	assert.True(t, cursor.Closed)
}

func TestFlagDatabase_FindSurfacesErrors(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("Find", mock.Anything, bson.M{"error": true}).Return(nil, errors.New("mocked-error"))
	broken := mocks.NewCursor(models.ContentFlag{ID: "a"})
	broken.Failed = errors.New("cursor-error")
	collectionHelper.On("Find", mock.Anything, bson.M{"error": false}).Return(broken, nil)
	dbHelper.On("Collection", "content_flags").Return(collectionHelper)

	flagDB := databases.NewFlagDatabase(dbHelper)

	_, err := databases.Collect(flagDB.Find(context.Background(), bson.M{"error": true}))
	assert.EqualError(t, err, "mocked-error")

	_, err = databases.Collect(flagDB.Find(context.Background(), bson.M{"error": false}))
	assert.EqualError(t, err, "cursor-error")
}

func TestFlagDatabase_CompareAndSetStatus(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	srHelper := &mocks.SingleResultHelper{}

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	review := models.Review{Status: models.StatusReviewing, ReviewedBy: "a1", ReviewedAt: at}

	srHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.ContentFlag)
		arg.ID = "f1"
		arg.Status = models.StatusReviewing
		arg.ReviewedBy = "a1"
	})
	collectionHelper.On("FindOneAndUpdate", mock.Anything,
		bson.M{"_id": "f1", "status": models.StatusPending},
		bson.M{"$set": bson.M{"status": models.StatusReviewing, "reviewedBy": "a1", "reviewedAt": at}},
	).Return(srHelper)
	dbHelper.On("Collection", "content_flags").Return(collectionHelper)

	flag, err := databases.NewFlagDatabase(dbHelper).CompareAndSetStatus(context.Background(), "f1", models.StatusPending, review)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusReviewing, flag.Status)
	assert.Equal(t, "a1", flag.ReviewedBy)
	collectionHelper.AssertExpectations(t)
}

func TestFlagDatabase_CountDocuments(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("CountDocuments", mock.Anything, bson.M{"status": models.StatusPending}).Return(int64(3), nil)
	dbHelper.On("Collection", "content_flags").Return(collectionHelper)

	n, err := databases.NewFlagDatabase(dbHelper).CountDocuments(context.Background(), bson.M{"status": models.StatusPending})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

package databases

import (
	"context"
	"iter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoPaginate struct {
	limit int64
	page  int64
}

func newMongoPaginate(limit, page int) *mongoPaginate {
	return &mongoPaginate{
		limit: int64(limit),
		page:  int64(page),
	}
}

func (mp *mongoPaginate) getPaginatedOpts() *options.FindOptions {
	l := mp.limit
	skip := mp.page*mp.limit - mp.limit
	fOpt := options.FindOptions{Limit: &l, Skip: &skip}

	return &fOpt
}

// Page returns find options selecting one page of results. Pages start at 1;
// a non positive limit disables paging.
func Page(limit, page int) *options.FindOptions {
	if limit <= 0 {
		return options.Find()
	}
	if page < 1 {
		page = 1
	}
	return newMongoPaginate(limit, page).getPaginatedOpts()
}

// createdAtAscending orders records oldest first with the id as tie breaker
func createdAtAscending() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
}

func findOpts(opts []*options.FindOptions) []*options.FindOptions {
	return append([]*options.FindOptions{createdAtAscending()}, opts...)
}

// iterate turns a query into a lazy sequence. Each range over the
// sequence runs the query again, so a sequence can be consumed any number
// of times.
func iterate[T any](ctx context.Context, find func() (CursorHelper, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		cursor, err := find()
		if err != nil {
			yield(zero, err)
			return
		}
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			var v T
			if err := cursor.Decode(&v); err != nil {
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// Collect drains a sequence into a slice, stopping at the first error
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := []T{}
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Package memdb holds in-memory implementations of the database interfaces.
// They keep the same contracts as the mongo backed stores: unknown ids and
// lost test-and-set races surface as mongo.ErrNoDocuments, unique keys
// surface as databases.ErrDuplicate and Find is ordered by createdAt then id.
// Filters support top level equality on bson field names only.
package memdb

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/models"
)

type table[T any] struct {
	mu      sync.Mutex
	rows    map[string]T
	id      func(T) string
	created func(T) time.Time
	field   func(T, string) interface{}
	// Err, when set, is returned by every call
	Err error
}

func newTable[T any](id func(T) string, created func(T) time.Time, field func(T, string) interface{}) *table[T] {
	return &table[T]{rows: map[string]T{}, id: id, created: created, field: field}
}

func (t *table[T]) get(id string) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	v, ok := t.rows[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &v, nil
}

func (t *table[T]) insert(v T, unique func(existing T) bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	if _, ok := t.rows[t.id(v)]; ok {
		return databases.ErrDuplicate
	}
	if unique != nil {
		for _, existing := range t.rows {
			if unique(existing) {
				return databases.ErrDuplicate
			}
		}
	}
	t.rows[t.id(v)] = v
	return nil
}

// update applies fn to the row with id if cond holds, atomically
func (t *table[T]) update(id string, cond func(T) bool, fn func(*T)) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	v, ok := t.rows[id]
	if !ok || !cond(v) {
		return nil, mongo.ErrNoDocuments
	}
	fn(&v)
	t.rows[id] = v
	return &v, nil
}

func (t *table[T]) first(match func(T) bool) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	for _, v := range t.sorted() {
		if match(v) {
			return &v, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (t *table[T]) sorted() []T {
	out := make([]T, 0, len(t.rows))
	for _, v := range t.rows {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := t.created(out[i]), t.created(out[j])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return t.id(out[i]) < t.id(out[j])
	})
	return out
}

func (t *table[T]) matches(v T, filter interface{}) bool {
	m, _ := filter.(bson.M)
	for k, want := range m {
		if fmt.Sprint(t.field(v, k)) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// find snapshots matching rows when the sequence is ranged over
func (t *table[T]) find(filter interface{}, opts []*options.FindOptions) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		t.mu.Lock()
		if t.Err != nil {
			err := t.Err
			t.mu.Unlock()
			yield(zero, err)
			return
		}
		var rows []T
		for _, v := range t.sorted() {
			if t.matches(v, filter) {
				rows = append(rows, v)
			}
		}
		t.mu.Unlock()

		skip, limit := window(opts)
		for i, v := range rows {
			if int64(i) < skip {
				continue
			}
			if limit > 0 && int64(i)-skip >= limit {
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (t *table[T]) count(filter interface{}) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return 0, t.Err
	}
	var n int64
	for _, v := range t.rows {
		if t.matches(v, filter) {
			n++
		}
	}
	return n, nil
}

func window(opts []*options.FindOptions) (skip, limit int64) {
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Skip != nil {
			skip = *o.Skip
		}
		if o.Limit != nil {
			limit = *o.Limit
		}
	}
	return skip, limit
}

func stamp(at time.Time) *time.Time {
	return &at
}

// Flags is an in-memory databases.FlagDatabase
type Flags struct {
	*table[models.ContentFlag]
}

// NewFlags returns an empty flag store
func NewFlags() *Flags {
	return &Flags{newTable(
		func(f models.ContentFlag) string { return f.ID },
		func(f models.ContentFlag) time.Time { return f.CreatedAt },
		func(f models.ContentFlag, k string) interface{} {
			switch k {
			case "_id":
				return f.ID
			case "status":
				return f.Status
			case "ownerId":
				return f.OwnerID
			case "subjectType":
				return f.SubjectType
			}
			return nil
		},
	)}
}

func (f *Flags) FindOne(_ context.Context, id string) (*models.ContentFlag, error) {
	return f.get(id)
}

func (f *Flags) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.ContentFlag, error] {
	return f.find(filter, opts)
}

func (f *Flags) InsertOne(_ context.Context, flag models.ContentFlag) error {
	return f.insert(flag, nil)
}

func (f *Flags) CompareAndSetStatus(_ context.Context, id string, from models.FlagStatus, review models.Review) (*models.ContentFlag, error) {
	return f.update(id,
		func(v models.ContentFlag) bool { return v.Status == from },
		func(v *models.ContentFlag) {
			v.Status = review.Status
			v.ReviewedBy = review.ReviewedBy
			v.ReviewedAt = stamp(review.ReviewedAt)
		})
}

func (f *Flags) CountDocuments(_ context.Context, filter interface{}) (int64, error) {
	return f.count(filter)
}

// Items is an in-memory databases.FlaggedItemDatabase
type Items struct {
	*table[models.FlaggedItem]
}

// NewItems returns an empty flagged item store
func NewItems() *Items {
	return &Items{newTable(
		func(i models.FlaggedItem) string { return i.ID },
		func(i models.FlaggedItem) time.Time { return i.Timestamp },
		func(i models.FlaggedItem, k string) interface{} {
			switch k {
			case "_id":
				return i.ID
			case "status":
				return i.Status
			case "flagId":
				return i.FlagID
			case "type":
				return i.Type
			}
			return nil
		},
	)}
}

func (s *Items) FindOne(_ context.Context, id string) (*models.FlaggedItem, error) {
	return s.get(id)
}

func (s *Items) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.FlaggedItem, error] {
	return s.find(filter, opts)
}

func (s *Items) InsertOne(_ context.Context, item models.FlaggedItem) error {
	return s.insert(item, nil)
}

func (s *Items) CompareAndSetStatus(_ context.Context, id string, from models.FlagStatus, review models.Review) (*models.FlaggedItem, error) {
	return s.update(id,
		func(v models.FlaggedItem) bool { return v.Status == from },
		func(v *models.FlaggedItem) {
			v.Status = review.Status
			v.ReviewedBy = review.ReviewedBy
			v.ReviewedAt = stamp(review.ReviewedAt)
		})
}

// Users is an in-memory databases.UserDatabase
type Users struct {
	*table[models.User]
}

// NewUsers returns a user store holding users
func NewUsers(users ...models.User) *Users {
	u := &Users{newTable(
		func(u models.User) string { return u.ID },
		func(u models.User) time.Time { return u.CreatedAt },
		func(u models.User, k string) interface{} {
			switch k {
			case "_id":
				return u.ID
			case "email":
				return u.Email
			case "role":
				return u.Role
			case "isVerified":
				return u.IsVerified
			}
			return nil
		},
	)}
	for _, user := range users {
		u.rows[user.ID] = user
	}
	return u
}

func (u *Users) FindOne(_ context.Context, id string) (*models.User, error) {
	return u.get(id)
}

func (u *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return u.first(func(v models.User) bool { return v.Email == email })
}

func (u *Users) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.User, error] {
	return u.find(filter, opts)
}

func (u *Users) InsertOne(_ context.Context, user models.User) error {
	return u.insert(user, func(existing models.User) bool { return existing.Email == user.Email })
}

func (u *Users) MarkVerified(_ context.Context, id, actorID string, at time.Time) (*models.User, error) {
	return u.update(id,
		func(v models.User) bool { return !v.IsVerified },
		func(v *models.User) {
			v.IsVerified = true
			v.VerifiedBy = actorID
			v.VerifiedAt = stamp(at)
		})
}

func (u *Users) SetRole(_ context.Context, id string, role models.Role) (*models.User, error) {
	return u.update(id,
		func(models.User) bool { return true },
		func(v *models.User) { v.Role = role })
}

func (u *Users) CountDocuments(_ context.Context, filter interface{}) (int64, error) {
	return u.count(filter)
}

// KYC is an in-memory databases.KYCDatabase
type KYC struct {
	*table[models.KYCRequest]
}

// NewKYC returns a KYC store holding reqs
func NewKYC(reqs ...models.KYCRequest) *KYC {
	k := &KYC{newTable(
		func(r models.KYCRequest) string { return r.ID },
		func(r models.KYCRequest) time.Time { return r.CreatedAt },
		func(r models.KYCRequest, key string) interface{} {
			switch key {
			case "_id":
				return r.ID
			case "userId":
				return r.UserID
			case "status":
				return r.Status
			}
			return nil
		},
	)}
	for _, r := range reqs {
		k.rows[r.ID] = r
	}
	return k
}

func (k *KYC) FindOne(_ context.Context, id string) (*models.KYCRequest, error) {
	return k.get(id)
}

func (k *KYC) FindPendingByUser(_ context.Context, userID string) (*models.KYCRequest, error) {
	return k.first(func(r models.KYCRequest) bool {
		return r.UserID == userID && r.Status == models.KYCPending
	})
}

func (k *KYC) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) iter.Seq2[models.KYCRequest, error] {
	return k.find(filter, opts)
}

// InsertOne enforces the one pending request per user index
func (k *KYC) InsertOne(_ context.Context, req models.KYCRequest) error {
	return k.insert(req, func(existing models.KYCRequest) bool {
		return req.Status == models.KYCPending &&
			existing.Status == models.KYCPending &&
			existing.UserID == req.UserID
	})
}

func (k *KYC) CompareAndSetStatus(_ context.Context, id string, from models.KYCStatus, review models.KYCReview) (*models.KYCRequest, error) {
	return k.update(id,
		func(v models.KYCRequest) bool { return v.Status == from },
		func(v *models.KYCRequest) {
			v.Status = review.Status
			if review.RejectionReason != "" {
				v.RejectionReason = review.RejectionReason
			}
			v.ReviewedBy = review.ReviewedBy
			v.ReviewedAt = stamp(review.ReviewedAt)
		})
}

func (k *KYC) CountDocuments(_ context.Context, filter interface{}) (int64, error) {
	return k.count(filter)
}

var (
	_ databases.FlagDatabase        = (*Flags)(nil)
	_ databases.FlaggedItemDatabase = (*Items)(nil)
	_ databases.UserDatabase        = (*Users)(nil)
	_ databases.KYCDatabase         = (*KYC)(nil)
)

package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/models"
)

// maxAttempts bounds how often a commit is retried after losing a
// test-and-set race. Each retry re-reads and re-validates, so it only
// loops while other writers keep moving the record between legal states.
const maxAttempts = 3

// Publisher receives events after they are committed
type Publisher interface {
	Publish(ctx context.Context, e models.Event)
}

// Workflow owns every status change on flags, flagged items, users and KYC
// requests. Handlers never write those fields directly.
type Workflow struct {
	FDB    databases.FlagDatabase
	IDB    databases.FlaggedItemDatabase
	UDB    databases.UserDatabase
	KDB    databases.KYCDatabase
	Events Publisher
	Now    func() time.Time
	NewID  func() string
}

// New returns a Workflow over the given stores. events may be nil.
func New(fdb databases.FlagDatabase, idb databases.FlaggedItemDatabase, udb databases.UserDatabase, kdb databases.KYCDatabase, events Publisher) *Workflow {
	return &Workflow{
		FDB:    fdb,
		IDB:    idb,
		UDB:    udb,
		KDB:    kdb,
		Events: events,
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  uuid.NewString,
	}
}

func (w *Workflow) now() time.Time {
	if w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now()
}

func (w *Workflow) newID() string {
	if w.NewID == nil {
		return uuid.NewString()
	}
	return w.NewID()
}

func (w *Workflow) publish(ctx context.Context, e models.Event) {
	if w.Events == nil {
		return
	}
	e.OccurredAt = w.now()
	w.Events.Publish(ctx, e)
}

// Authorize resolves actorID against the user store and requires the admin
// role. Unknown actors are forbidden rather than not found so callers cannot
// probe for user ids.
func (w *Workflow) Authorize(ctx context.Context, actorID string) (*models.User, error) {
	if actorID == "" {
		return nil, ErrForbidden
	}
	actor, err := w.UDB.FindOne(ctx, actorID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, upstream("load actor", err)
	}
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return actor, nil
}

// SetFlagStatus moves a content flag to target on behalf of an admin
func (w *Workflow) SetFlagStatus(ctx context.Context, flagID string, target models.FlagStatus, actorID string) (flag *models.ContentFlag, err error) {
	defer func() { Transitions.WithLabelValues(FlagMachine.name, string(target), result(err)).Inc() }()

	if _, err = w.Authorize(ctx, actorID); err != nil {
		return nil, err
	}
	var from models.FlagStatus
	flag, err = commit(ctx, FlagMachine, target, false,
		func() (*models.ContentFlag, models.FlagStatus, error) {
			f, err := w.FDB.FindOne(ctx, flagID)
			if err != nil {
				return nil, "", err
			}
			from = f.Status
			return f, f.Status, nil
		},
		func(current models.FlagStatus) (*models.ContentFlag, error) {
			return w.FDB.CompareAndSetStatus(ctx, flagID, current, models.Review{
				Status:     target,
				ReviewedBy: actorID,
				ReviewedAt: w.now(),
			})
		},
	)
	if err != nil {
		return nil, err
	}
	if from != flag.Status {
		w.publish(ctx, models.Event{
			Type:     models.EventFlagStatusChanged,
			RecordID: flag.ID,
			OwnerID:  flag.OwnerID,
			ActorID:  actorID,
			From:     string(from),
			To:       string(flag.Status),
			Reason:   flag.Reason,
		})
	}
	return flag, nil
}

// SetItemStatus moves a flagged item to target on behalf of an admin.
// Repeating the terminal status an item already holds is a no-op.
func (w *Workflow) SetItemStatus(ctx context.Context, itemID string, target models.FlagStatus, actorID string) (item *models.FlaggedItem, err error) {
	defer func() { Transitions.WithLabelValues(ItemMachine.name, string(target), result(err)).Inc() }()

	if _, err = w.Authorize(ctx, actorID); err != nil {
		return nil, err
	}
	var from models.FlagStatus
	item, err = commit(ctx, ItemMachine, target, true,
		func() (*models.FlaggedItem, models.FlagStatus, error) {
			it, err := w.IDB.FindOne(ctx, itemID)
			if err != nil {
				return nil, "", err
			}
			from = it.Status
			return it, it.Status, nil
		},
		func(current models.FlagStatus) (*models.FlaggedItem, error) {
			return w.IDB.CompareAndSetStatus(ctx, itemID, current, models.Review{
				Status:     target,
				ReviewedBy: actorID,
				ReviewedAt: w.now(),
			})
		},
	)
	if err != nil {
		return nil, err
	}
	if from != item.Status {
		w.publish(ctx, models.Event{
			Type:     models.EventItemStatusChanged,
			RecordID: item.ID,
			ActorID:  actorID,
			From:     string(from),
			To:       string(item.Status),
			Reason:   item.Reason,
		})
	}
	return item, nil
}

// commit runs the read, validate, test-and-set loop shared by flags and
// items. load returns the current record; set writes target only if the
// record is still in the status it was read in, returning
// mongo.ErrNoDocuments otherwise.
func commit[T any](
	ctx context.Context,
	m machine,
	target models.FlagStatus,
	stickyTerminal bool,
	load func() (*T, models.FlagStatus, error),
	set func(current models.FlagStatus) (*T, error),
) (*T, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		record, current, err := load()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, upstream("load "+m.name, err)
		}

		// existence is reported before the target is judged
		if !m.Valid(target) {
			return nil, invalid("unknown %s status %q", m.name, target)
		}
		if stickyTerminal && current == target && m.Terminal(current) {
			return record, nil
		}
		if !m.Allows(current, target) {
			return nil, invalid("%s %s -> %s", m.name, current, target)
		}

		updated, err := set(current)
		if errors.Is(err, mongo.ErrNoDocuments) {
			Conflicts.WithLabelValues(m.name).Inc()
			zap.S().Debugw("lost status race, re-reading",
				"kind", m.name,
				"from", current,
				"to", target,
				"attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, upstream("update "+m.name, err)
		}
		return updated, nil
	}
	return nil, invalid("%s changed concurrently %d times", m.name, maxAttempts)
}

// VerifyUser marks a user verified and approves their pending KYC request.
// Verifying an already verified user returns it unchanged.
func (w *Workflow) VerifyUser(ctx context.Context, userID, actorID string) (user *models.User, err error) {
	defer func() { Transitions.WithLabelValues("user", "verified", result(err)).Inc() }()

	if _, err = w.Authorize(ctx, actorID); err != nil {
		return nil, err
	}

	user, err = w.UDB.FindOne(ctx, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, upstream("load user", err)
	}
	if user.IsVerified {
		return user, nil
	}

	verified, err := w.UDB.MarkVerified(ctx, userID, actorID, w.now())
	if errors.Is(err, mongo.ErrNoDocuments) {
		// another admin got there first
		user, err = w.UDB.FindOne(ctx, userID)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, upstream("reload user", err)
		}
		if user.IsVerified {
			return user, nil
		}
		return nil, invalid("user %s could not be verified", userID)
	}
	if err != nil {
		return nil, upstream("verify user", err)
	}

	w.approvePendingKYC(ctx, userID, actorID)
	w.publish(ctx, models.Event{
		Type:     models.EventUserVerified,
		RecordID: verified.ID,
		OwnerID:  verified.ID,
		ActorID:  actorID,
		From:     "unverified",
		To:       "verified",
	})
	return verified, nil
}

// approvePendingKYC closes out the KYC request that led to a verification.
// The user record is already committed at this point, so failures are
// logged and not returned.
func (w *Workflow) approvePendingKYC(ctx context.Context, userID, actorID string) {
	req, err := w.KDB.FindPendingByUser(ctx, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return
	}
	if err != nil {
		zap.S().Errorw("failed to load pending kyc request", "userId", userID, "error", err)
		return
	}
	_, err = w.KDB.CompareAndSetStatus(ctx, req.ID, models.KYCPending, models.KYCReview{
		Status:     models.KYCApproved,
		ReviewedBy: actorID,
		ReviewedAt: w.now(),
	})
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		zap.S().Errorw("failed to approve kyc request", "kycId", req.ID, "userId", userID, "error", err)
	}
}

package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/models"
	"github.com/deepshield/deepshield-api/moderation"
	"github.com/deepshield/deepshield-api/notifications"
)

// Admin exposes the review queue and account decisions to administrators
type Admin struct {
	WF  *moderation.Workflow
	FDB databases.FlagDatabase
	UDB databases.UserDatabase
	KDB databases.KYCDatabase
	Hub *notifications.Hub
}

// ListUsersHandler returns users, optionally filtered by verified and role
func (a Admin) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := a.WF.Authorize(r.Context(), actor(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := parseList(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := bson.M{}
	if v := r.URL.Query().Get("verified"); v != "" {
		verified, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, invalidRequest("verified must be true or false"))
			return
		}
		filter["isVerified"] = verified
	}
	if v := r.URL.Query().Get("role"); v != "" {
		role := models.Role(v)
		if role != models.RoleUser && role != models.RoleAdmin {
			writeError(w, r, invalidRequest(fmt.Sprintf("unknown role %q", v)))
			return
		}
		filter["role"] = role
	}

	users, err := databases.Collect(a.UDB.Find(r.Context(), filter, p.findOptions()))
	if err != nil {
		writeError(w, r, storeError("list users", err))
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ListFlagsHandler returns content flags oldest first, optionally by status
func (a Admin) ListFlagsHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := a.WF.Authorize(r.Context(), actor(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := parseList(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := bson.M{}
	if v := r.URL.Query().Get("status"); v != "" {
		if !moderation.FlagMachine.Valid(models.FlagStatus(v)) {
			writeError(w, r, invalidRequest(fmt.Sprintf("unknown flag status %q", v)))
			return
		}
		filter["status"] = v
	}

	flags, err := databases.Collect(a.FDB.Find(r.Context(), filter, p.findOptions()))
	if err != nil {
		writeError(w, r, storeError("list flags", err))
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

// VerifyUserHandler marks a user verified. Verifying twice is not an error.
func (a Admin) VerifyUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	user, err := a.WF.VerifyUser(r.Context(), userID, actor(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateFlagStatusHandler moves a content flag through its review states
func (a Admin) UpdateFlagStatusHandler(w http.ResponseWriter, r *http.Request) {
	var body models.UpdateStatusRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	flag, err := a.WF.SetFlagStatus(r.Context(), mux.Vars(r)["id"], body.Status, actor(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

// ListKYCHandler returns KYC requests, optionally by status
func (a Admin) ListKYCHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := a.WF.Authorize(r.Context(), actor(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := parseList(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := bson.M{}
	if v := r.URL.Query().Get("status"); v != "" {
		switch models.KYCStatus(v) {
		case models.KYCPending, models.KYCApproved, models.KYCRejected:
			filter["status"] = v
		default:
			writeError(w, r, invalidRequest(fmt.Sprintf("unknown kyc status %q", v)))
			return
		}
	}

	reqs, err := databases.Collect(a.KDB.Find(r.Context(), filter, p.findOptions()))
	if err != nil {
		writeError(w, r, storeError("list kyc", err))
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// RejectKYCHandler closes a pending KYC request with a reason
func (a Admin) RejectKYCHandler(w http.ResponseWriter, r *http.Request) {
	var body models.RejectKYCRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := a.WF.RejectKYC(r.Context(), mux.Vars(r)["id"], actor(r).ID, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// StatsHandler returns dashboard counters
func (a Admin) StatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := a.WF.Authorize(ctx, actor(r).ID); err != nil {
		writeError(w, r, err)
		return
	}

	var stats models.AdminStats
	counts := []struct {
		dst   *int64
		count func() (int64, error)
	}{
		{&stats.TotalUsers, func() (int64, error) { return a.UDB.CountDocuments(ctx, bson.M{}) }},
		{&stats.VerifiedUsers, func() (int64, error) { return a.UDB.CountDocuments(ctx, bson.M{"isVerified": true}) }},
		{&stats.PendingKYC, func() (int64, error) { return a.KDB.CountDocuments(ctx, bson.M{"status": models.KYCPending}) }},
		{&stats.PendingFlags, func() (int64, error) { return a.FDB.CountDocuments(ctx, bson.M{"status": models.StatusPending}) }},
		{&stats.TotalFlags, func() (int64, error) { return a.FDB.CountDocuments(ctx, bson.M{}) }},
	}
	for _, c := range counts {
		n, err := c.count()
		if err != nil {
			writeError(w, r, storeError("count", err))
			return
		}
		*c.dst = n
	}
	writeJSON(w, http.StatusOK, stats)
}

// EventsHandler streams committed workflow events over a websocket
func (a Admin) EventsHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := a.WF.Authorize(r.Context(), actor(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.Hub.Serve(w, r, caller.ID)
}

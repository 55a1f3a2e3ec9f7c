// Package api exposes HTTP handlers for the challenge service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/challenge/internal/auth"
	"example.com/challenge/internal/credentials"
	"example.com/challenge/internal/domain"
	"example.com/challenge/internal/observability"
	"example.com/challenge/internal/persistence"
	"example.com/challenge/internal/strava"
)

// CredentialGateway covers the credential operations the API needs.
type CredentialGateway interface {
	Connect(ctx context.Context, userID string, grant strava.TokenGrant) error
	Status(ctx context.Context, userID string) (*credentials.Credential, error)
	Disconnect(ctx context.Context, userID string) error
}

// TokenExchanger trades an OAuth authorization code for a grant.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (strava.TokenGrant, error)
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service     *domain.Service
	credentials CredentialGateway
	exchanger   TokenExchanger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, creds CredentialGateway, exchanger TokenExchanger) *Handler {
	return &Handler{service: service, credentials: creds, exchanger: exchanger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/challenges", h.challenges)
	mux.HandleFunc("/v1/challenges/", h.challengeSubresource)
	mux.HandleFunc("/v1/activities/sync", h.syncActivities)
	mux.HandleFunc("/v1/integrations/strava", h.stravaStatus)
	mux.HandleFunc("/v1/integrations/strava/connect", h.stravaConnect)
	mux.HandleFunc("/v1/integrations/strava/disconnect", h.stravaDisconnect)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) challenges(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createChallenge(w, r)
	case http.MethodGet:
		h.listChallenges(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) challengeSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/challenges/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing challenge id")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.getChallenge(w, r, id)
		case http.MethodPatch:
			h.updateChallenge(w, r, id)
		case http.MethodDelete:
			h.deleteChallenge(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		}
		return
	}

	switch parts[1] {
	case "join":
		h.requirePost(w, r, id, h.joinChallenge)
	case "leave":
		h.requirePost(w, r, id, h.leaveChallenge)
	case "participants":
		h.participants(w, r, id)
	case "leaderboard":
		h.leaderboard(w, r, id)
	case "sync":
		h.requirePost(w, r, id, h.syncChallenge)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request, id string, next func(http.ResponseWriter, *http.Request, string)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	next(w, r, id)
}

func (h *Handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	var req CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	challenge, err := h.service.CreateChallenge(r.Context(), domain.CreateChallengeInput{
		Title:     req.Title,
		Type:      domain.ScoringType(req.Type),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		CreatorID: claims.Subject,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toChallengeView(*challenge, time.Now().UTC()))
}

func (h *Handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeChallengesRead, auth.ScopeChallengesWrite); !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	filter := domain.ChallengeFilter{
		Type:      domain.ScoringType(r.URL.Query().Get("type")),
		Status:    domain.ChallengeStatus(r.URL.Query().Get("status")),
		CreatorID: r.URL.Query().Get("creator_id"),
	}

	challenges, next, err := h.service.ListChallenges(r.Context(), filter, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	items := make([]ChallengeView, 0, len(challenges))
	for _, c := range challenges {
		items = append(items, toChallengeView(c, now))
	}

	writeJSON(w, http.StatusOK, ListChallengesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) getChallenge(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeChallengesRead, auth.ScopeChallengesWrite); !ok {
		return
	}

	challenge, err := h.service.GetChallenge(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeView(*challenge, time.Now().UTC()))
}

func (h *Handler) updateChallenge(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	var req UpdateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	challenge, err := h.service.UpdateChallenge(r.Context(), id, claims.Subject, domain.UpdateChallengeInput{
		Title:     req.Title,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeView(*challenge, time.Now().UTC()))
}

func (h *Handler) deleteChallenge(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	if err := h.service.DeleteChallenge(r.Context(), id, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) joinChallenge(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	if err := h.service.JoinChallenge(r.Context(), id, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) leaveChallenge(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	if err := h.service.LeaveChallenge(r.Context(), id, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) participants(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeChallengesRead, auth.ScopeChallengesWrite); !ok {
		return
	}

	members, err := h.service.Participants(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ParticipantView, 0, len(members))
	for _, m := range members {
		items = append(items, ParticipantView{UserID: m.UserID, Name: m.Name})
	}
	writeJSON(w, http.StatusOK, ParticipantsResponse{Items: items})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeChallengesRead, auth.ScopeChallengesWrite); !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.service.Leaderboard(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]LeaderboardEntryView, 0, len(entries))
	for _, e := range entries {
		items = append(items, LeaderboardEntryView{
			Rank:   e.Rank,
			UserID: e.UserID,
			Name:   e.Name,
			Total:  e.Total,
		})
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Items: items})
}

func (h *Handler) syncChallenge(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeSync)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.service.SyncChallenge(r.Context(), id, claims.Subject)
	if err != nil {
		observability.RecordSyncRun("failure", time.Since(start))
		writeDomainError(w, err)
		return
	}
	observability.RecordSyncRun("success", time.Since(start))

	writeJSON(w, http.StatusOK, SyncResponse{
		DaysUpdated:       result.DaysUpdated,
		ActivitiesFetched: result.ActivitiesFetched,
	})
}

func (h *Handler) syncActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeSync)
	if !ok {
		return
	}

	var req ActivitySyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.After <= 0 || req.Before <= req.After {
		writeError(w, http.StatusBadRequest, "validation_failed", "after and before must describe a forward window")
		return
	}

	cached, err := h.service.SyncActivities(r.Context(), claims.Subject, req.After, req.Before)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActivitySyncResponse{Cached: cached})
}

func (h *Handler) stravaStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeChallengesRead, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	cred, err := h.credentials.Status(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "unable to load connection status")
		return
	}

	resp := StravaStatusResponse{Connected: cred != nil}
	if cred != nil {
		expires := cred.ExpiresAt
		resp.ExpiresAt = &expires
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) stravaConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	var req StravaConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "code is required")
		return
	}

	grant, err := h.exchanger.Exchange(r.Context(), req.Code)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", "authorization code exchange failed")
		return
	}
	if err := h.credentials.Connect(r.Context(), claims.Subject, grant); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "unable to store credential")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stravaDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	if err := h.credentials.Disconnect(r.Context(), claims.Subject); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "unable to disconnect")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireScope resolves claims and checks that at least one scope is present.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

// writeDomainError maps domain sentinels onto HTTP responses. Upstream
// failures never leak payloads to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrChallengeNotFound):
		writeError(w, http.StatusNotFound, "not_found", "challenge not found")
	case errors.Is(err, domain.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "forbidden", "caller may not perform this action")
	case errors.Is(err, domain.ErrInvalidChallenge):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNotConnected):
		writeError(w, http.StatusConflict, "not_connected", "no linked fitness account")
	case errors.Is(err, domain.ErrRefreshFailed):
		writeError(w, http.StatusUnauthorized, "reauthorization_required", "stored credential could not be refreshed")
	case errors.Is(err, domain.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_error", "fitness source request failed")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// CreateChallengeRequest is the payload for POST /v1/challenges.
type CreateChallengeRequest struct {
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// UpdateChallengeRequest carries the mutable challenge fields.
type UpdateChallengeRequest struct {
	Title     string    `json:"title"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// ChallengeView exposes full details about a challenge.
type ChallengeView struct {
	ChallengeID      string    `json:"challenge_id"`
	Title            string    `json:"title"`
	Type             string    `json:"type"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	CreatorID        string    `json:"creator_id"`
	Status           string    `json:"status"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListChallengesResponse packages list results.
type ListChallengesResponse struct {
	Items      []ChallengeView `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// ParticipantView is one challenge member.
type ParticipantView struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// ParticipantsResponse packages participant listings.
type ParticipantsResponse struct {
	Items []ParticipantView `json:"items"`
}

// LeaderboardEntryView is one ranked leaderboard line.
type LeaderboardEntryView struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Total  int64  `json:"total"`
}

// LeaderboardResponse packages the ranked standings.
type LeaderboardResponse struct {
	Items []LeaderboardEntryView `json:"items"`
}

// SyncResponse describes the outcome of a challenge sync.
type SyncResponse struct {
	DaysUpdated       int `json:"days_updated"`
	ActivitiesFetched int `json:"activities_fetched"`
}

// ActivitySyncRequest bounds the raw-cache refresh window with Unix epochs.
type ActivitySyncRequest struct {
	After  int64 `json:"after"`
	Before int64 `json:"before"`
}

// ActivitySyncResponse reports how many raw records were cached.
type ActivitySyncResponse struct {
	Cached int `json:"cached"`
}

// StravaConnectRequest carries the OAuth authorization code.
type StravaConnectRequest struct {
	Code string `json:"code"`
}

// StravaStatusResponse reports connection state for the caller.
type StravaStatusResponse struct {
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func toChallengeView(c domain.Challenge, now time.Time) ChallengeView {
	return ChallengeView{
		ChallengeID:      c.ID,
		Title:            c.Title,
		Type:             string(c.Type),
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		CreatorID:        c.CreatorID,
		Status:           string(c.Status(now)),
		ParticipantCount: len(c.Participants),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

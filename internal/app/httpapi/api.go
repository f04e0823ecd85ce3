// Package httpapi exposes the REST handlers and translates HTTP requests to the services.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/knppkp/pollboard/internal/app/accounts"
	"github.com/knppkp/pollboard/internal/app/polls"
	"github.com/knppkp/pollboard/internal/app/voting"
	"github.com/knppkp/pollboard/internal/domain"
	"github.com/knppkp/pollboard/internal/platform/metrics"
	"github.com/knppkp/pollboard/internal/platform/ratelimit"
)

// API bundles the HTTP handlers bound to the three services.
type API struct {
	accounts     domain.AccountService
	polls        domain.PollService
	votes        domain.VotingService
	verifier     TokenVerifier
	authRequired bool
	logger       *slog.Logger
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(raw string) (domain.UserID, error)
}

func New(accountsSvc domain.AccountService, pollsSvc domain.PollService, votesSvc domain.VotingService, verifier TokenVerifier, authRequired bool, logger *slog.Logger) *API {
	return &API{
		accounts:     accountsSvc,
		polls:        pollsSvc,
		votes:        votesSvc,
		verifier:     verifier,
		authRequired: authRequired,
		logger:       logger,
	}
}

func (a *API) Register(mux *http.ServeMux) {
	// Routes stay centralized so tests and alternate servers can reuse them.
	mux.HandleFunc("GET /healthz", a.handleHealthz)

	mux.HandleFunc("POST /api/users/register", a.registerUser)
	mux.HandleFunc("POST /api/users/login", a.loginUser)
	mux.HandleFunc("GET /api/users", a.listUsers)
	mux.HandleFunc("GET /api/users/{id}", a.getUser)

	mux.HandleFunc("POST /api/polls", a.createPoll)
	mux.HandleFunc("GET /api/polls/user/{userId}", a.listPollsByUser)
	mux.HandleFunc("GET /api/polls/{id}", a.getPoll)
	mux.HandleFunc("DELETE /api/polls/{id}", a.deletePoll)
	mux.HandleFunc("GET /api/polls/{pollId}/can-vote/{userId}", a.checkVotingPermission)
	mux.HandleFunc("POST /api/polls/{pollId}/voters", a.addVoter)

	mux.HandleFunc("POST /api/choices", a.addChoice)
	mux.HandleFunc("GET /api/choices/poll/{pollId}", a.listChoices)

	mux.HandleFunc("POST /api/votes", a.submitVote)
	mux.HandleFunc("POST /api/votes/change", a.changeVote)
	mux.HandleFunc("GET /api/votes/results/{pollId}", a.getResults)
	mux.HandleFunc("GET /api/votes/poll/{pollId}/user/{userId}", a.getUserBallot)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadPayload(w)
		return
	}

	user, err := a.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		a.logger.Warn("registration failed", "email", req.Email, "err", err)
		a.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) loginUser(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadPayload(w)
		return
	}

	user, token, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		metrics.ObserveLogin("rejected")
		a.logger.Warn("login failed", "email", req.Email, "err", err)
		a.respondError(w, err)
		return
	}

	metrics.ObserveLogin("accepted")
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    user,
		"token":   token,
	})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.accounts.ListUsers(r.Context())
	if err != nil {
		a.logger.Error("failed to list users", "err", err)
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.accounts.GetUser(r.Context(), domain.UserID(r.PathValue("id")))
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type createPollRequest struct {
	PollName  string     `json:"poll_name"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	CreatorID string     `json:"creator_id"`
	Choices   []string   `json:"choices"`
	Voters    []string   `json:"voters"`
}

func (a *API) createPoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadPayload(w)
		return
	}

	if !a.actingUserAllowed(w, r, domain.UserID(req.CreatorID)) {
		return
	}

	voterIDs := make([]domain.UserID, len(req.Voters))
	for i, v := range req.Voters {
		voterIDs[i] = domain.UserID(v)
	}

	poll, err := a.polls.CreatePoll(r.Context(), domain.Poll{
		Name:      req.PollName,
		CreatorID: domain.UserID(req.CreatorID),
		DueDate:   req.DueDate,
	}, req.Choices, voterIDs)
	if err != nil {
		a.logger.Warn("poll creation failed", "creator", req.CreatorID, "err", err)
		a.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Poll created successfully",
		"poll":    poll,
	})
}

func (a *API) listPollsByUser(w http.ResponseWriter, r *http.Request) {
	result, err := a.polls.ListPollsByUser(r.Context(), domain.UserID(r.PathValue("userId")))
	if err != nil {
		a.logger.Error("failed to list polls", "err", err)
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) getPoll(w http.ResponseWriter, r *http.Request) {
	poll, err := a.polls.GetPoll(r.Context(), domain.PollID(r.PathValue("id")))
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, poll)
}

func (a *API) deletePoll(w http.ResponseWriter, r *http.Request) {
	id := domain.PollID(r.PathValue("id"))

	if a.authRequired {
		poll, err := a.polls.GetPoll(r.Context(), id)
		if err != nil {
			a.respondError(w, err)
			return
		}
		if !a.actingUserAllowed(w, r, poll.CreatorID) {
			return
		}
	}

	if err := a.polls.DeletePoll(r.Context(), id); err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Poll deleted successfully"})
}

func (a *API) checkVotingPermission(w http.ResponseWriter, r *http.Request) {
	canVote, err := a.polls.CanVote(r.Context(), domain.PollID(r.PathValue("pollId")), domain.UserID(r.PathValue("userId")))
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"can_vote": canVote})
}

type addVoterRequest struct {
	UserID string `json:"user_id"`
}

func (a *API) addVoter(w http.ResponseWriter, r *http.Request) {
	var req addVoterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadPayload(w)
		return
	}

	if err := a.polls.AddVoter(r.Context(), domain.PollID(r.PathValue("pollId")), domain.UserID(req.UserID)); err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"message": "Voter added successfully"})
}

type addChoiceRequest struct {
	ChoiceText string `json:"choice_text"`
	PollID     string `json:"poll_id"`
}

func (a *API) addChoice(w http.ResponseWriter, r *http.Request) {
	var req addChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadPayload(w)
		return
	}

	choice, err := a.polls.AddChoice(r.Context(), domain.PollID(req.PollID), req.ChoiceText)
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Choice added successfully",
		"choice":  choice,
	})
}

func (a *API) listChoices(w http.ResponseWriter, r *http.Request) {
	choices, err := a.polls.ListChoices(r.Context(), domain.PollID(r.PathValue("pollId")))
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, choices)
}

type voteRequest struct {
	UserID   string `json:"user_id"`
	ChoiceID string `json:"choice_id"`
}

func (a *API) submitVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveVoteRequest("invalid_payload")
		respondBadPayload(w)
		return
	}

	if !a.actingUserAllowed(w, r, domain.UserID(req.UserID)) {
		return
	}

	if err := a.votes.CastVote(r.Context(), domain.UserID(req.UserID), domain.ChoiceID(req.ChoiceID), clientOrigin(r)); err != nil {
		status := voteStatusFromError(err)
		metrics.ObserveVoteRequest(status)
		a.logger.Warn("vote rejected", "user", req.UserID, "choice", req.ChoiceID, "status", status)
		a.respondError(w, err)
		return
	}

	metrics.ObserveVoteRequest("accepted")
	respondJSON(w, http.StatusCreated, map[string]string{"code": "vote_submitted"})
	a.logger.Info("vote submitted", "user", req.UserID, "choice", req.ChoiceID)
}

type changeVoteRequest struct {
	UserID      string `json:"user_id"`
	NewChoiceID string `json:"new_choice_id"`
}

func (a *API) changeVote(w http.ResponseWriter, r *http.Request) {
	var req changeVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveVoteRequest("invalid_payload")
		respondBadPayload(w)
		return
	}

	if !a.actingUserAllowed(w, r, domain.UserID(req.UserID)) {
		return
	}

	if err := a.votes.ChangeVote(r.Context(), domain.UserID(req.UserID), domain.ChoiceID(req.NewChoiceID), clientOrigin(r)); err != nil {
		status := voteStatusFromError(err)
		metrics.ObserveVoteRequest(status)
		a.logger.Warn("vote change rejected", "user", req.UserID, "choice", req.NewChoiceID, "status", status)
		a.respondError(w, err)
		return
	}

	metrics.ObserveVoteRequest("changed")
	respondJSON(w, http.StatusOK, map[string]string{"message": "Your vote has been changed successfully"})
	a.logger.Info("vote changed", "user", req.UserID, "choice", req.NewChoiceID)
}

func (a *API) getResults(w http.ResponseWriter, r *http.Request) {
	results, err := a.votes.Results(r.Context(), domain.PollID(r.PathValue("pollId")))
	if err != nil {
		a.logger.Error("failed to read results", "err", err)
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (a *API) getUserBallot(w http.ResponseWriter, r *http.Request) {
	ballots, err := a.votes.UserBallot(r.Context(), domain.PollID(r.PathValue("pollId")), domain.UserID(r.PathValue("userId")))
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ballots)
}

// actingUserAllowed enforces the session token when one is present (or
// required): the token subject must match the user the request acts for.
// Writes the error response itself and reports whether to continue.
func (a *API) actingUserAllowed(w http.ResponseWriter, r *http.Request, claimed domain.UserID) bool {
	raw := bearerToken(r)
	if raw == "" {
		if a.authRequired {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return false
		}
		return true
	}

	actor, err := a.verifier.Verify(raw)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
		return false
	}

	if claimed != "" && actor != claimed {
		respondJSON(w, http.StatusForbidden, map[string]string{"error": "token does not match acting user"})
		return false
	}

	return true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func clientOrigin(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.Split(fwd, ",")[0]
	}
	return strings.Split(r.RemoteAddr, ":")[0]
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondBadPayload(w http.ResponseWriter) {
	respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
}

// respondError maps typed service errors onto statuses and stable codes.
func (a *API) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadyVoted):
		respondJSON(w, http.StatusConflict, map[string]string{"code": "already_voted"})
	case errors.Is(err, domain.ErrChoiceNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Choice not found"})
	case errors.Is(err, domain.ErrNotAuthorized):
		respondJSON(w, http.StatusForbidden, map[string]string{"error": "You are not authorized to vote on this poll"})
	case errors.Is(err, domain.ErrNotVotedYet):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "You haven't voted on this poll yet"})
	case errors.Is(err, domain.ErrSameChoice):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "You have already voted for this choice"})
	case errors.Is(err, domain.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	case errors.Is(err, domain.ErrEmailTaken):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Email already registered"})
	case errors.Is(err, accounts.ErrInvalidCredentials):
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	case errors.Is(err, accounts.ErrInvalidInput),
		errors.Is(err, polls.ErrInvalidPoll),
		errors.Is(err, polls.ErrInvalidChoice),
		errors.Is(err, voting.ErrInvalidRequest):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many vote requests"})
	default:
		a.logger.Error("unhandled error", "err", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

func voteStatusFromError(err error) string {
	switch {
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return "rate_limited"
	case errors.Is(err, domain.ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrChoiceNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotVotedYet), errors.Is(err, domain.ErrSameChoice), errors.Is(err, voting.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

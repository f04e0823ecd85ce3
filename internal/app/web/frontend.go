// Package web holds the HTML presentation layer: login, signup, the poll
// dashboard and the poll voting page, rendered from embedded templates.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/knppkp/pollboard/internal/app/accounts"
	"github.com/knppkp/pollboard/internal/domain"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// TokenVerifier resolves the session cookie back to a user id.
type TokenVerifier interface {
	Verify(raw string) (domain.UserID, error)
}

const sessionCookie = "pollboard_session"

// Frontend renders the form pages and the voting widget on top of the services.
type Frontend struct {
	templates *template.Template
	accounts  domain.AccountService
	polls     domain.PollService
	votes     domain.VotingService
	verifier  TokenVerifier
}

func New(accountsSvc domain.AccountService, pollsSvc domain.PollService, votesSvc domain.VotingService, verifier TokenVerifier) (*Frontend, error) {
	if accountsSvc == nil || pollsSvc == nil || votesSvc == nil {
		return nil, fmt.Errorf("frontend: missing service")
	}
	tmpl, err := template.ParseFS(templateFS,
		"templates/layout.gohtml",
		"templates/login.gohtml",
		"templates/signup.gohtml",
		"templates/polls.gohtml",
		"templates/poll.gohtml",
	)
	if err != nil {
		return nil, err
	}

	for _, name := range []string{"header", "footer", "login_body", "signup_body", "polls_body", "poll_body"} {
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("frontend: template %s not found", name)
		}
	}

	return &Frontend{
		templates: tmpl,
		accounts:  accountsSvc,
		polls:     pollsSvc,
		votes:     votesSvc,
		verifier:  verifier,
	}, nil
}

// Register mounts the HTML routes on the same mux as the API.
func (f *Frontend) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", f.handleRoot)
	mux.HandleFunc("GET /login", f.showLogin)
	mux.HandleFunc("POST /login", f.handleLogin)
	mux.HandleFunc("GET /signup", f.showSignup)
	mux.HandleFunc("POST /signup", f.handleSignup)
	mux.HandleFunc("GET /logout", f.handleLogout)
	mux.HandleFunc("GET /polls", f.showPolls)
	mux.HandleFunc("POST /polls/create", f.handleCreatePoll)
	mux.HandleFunc("GET /polls/{id}", f.showPoll)
	mux.HandleFunc("POST /polls/{id}/vote", f.handleVote)
}

func (f *Frontend) handleRoot(w http.ResponseWriter, r *http.Request) {
	if _, err := f.currentUser(r); err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/polls", http.StatusFound)
}

type loginPageData struct {
	Error string
}

func (f *Frontend) showLogin(w http.ResponseWriter, r *http.Request) {
	f.render(w, "login_body", loginPageData{Error: r.URL.Query().Get("err")})
}

func (f *Frontend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	_, token, err := f.accounts.Login(r.Context(), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			http.Redirect(w, r, "/login?err=Invalid+credentials", http.StatusFound)
			return
		}
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	f.setSession(w, token)
	http.Redirect(w, r, "/polls", http.StatusFound)
}

type signupPageData struct {
	Error string
}

func (f *Frontend) showSignup(w http.ResponseWriter, r *http.Request) {
	f.render(w, "signup_body", signupPageData{Error: r.URL.Query().Get("err")})
}

func (f *Frontend) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	_, err := f.accounts.Register(r.Context(), r.FormValue("name"), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailTaken):
			http.Redirect(w, r, "/signup?err=Email+already+registered", http.StatusFound)
		case errors.Is(err, accounts.ErrInvalidInput):
			http.Redirect(w, r, "/signup?err=All+fields+are+required", http.StatusFound)
		default:
			http.Error(w, "signup failed", http.StatusInternalServerError)
		}
		return
	}

	http.Redirect(w, r, "/login", http.StatusFound)
}

func (f *Frontend) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

type pollsPageData struct {
	User  domain.User
	Polls []domain.Poll
	Users []domain.User
	Error string
}

func (f *Frontend) showPolls(w http.ResponseWriter, r *http.Request) {
	user, err := f.currentUser(r)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	data := pollsPageData{User: user, Error: r.URL.Query().Get("err")}

	if pollList, err := f.polls.ListPollsByUser(r.Context(), user.ID); err == nil {
		data.Polls = pollList
	} else {
		data.Error = "Could not load your polls."
	}

	// The invitee picker needs the full account list.
	if userList, err := f.accounts.ListUsers(r.Context()); err == nil {
		data.Users = userList
	}

	f.render(w, "polls_body", data)
}

func (f *Frontend) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	user, err := f.currentUser(r)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	var choiceTexts []string
	for _, line := range strings.Split(r.FormValue("choices"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			choiceTexts = append(choiceTexts, line)
		}
	}

	voterIDs := make([]domain.UserID, 0, len(r.Form["voters"])+1)
	voterIDs = append(voterIDs, user.ID)
	for _, raw := range r.Form["voters"] {
		voterIDs = append(voterIDs, domain.UserID(raw))
	}

	poll := domain.Poll{Name: r.FormValue("poll_name"), CreatorID: user.ID}
	if raw := r.FormValue("due_date"); raw != "" {
		if due, parseErr := time.Parse("2006-01-02", raw); parseErr == nil {
			poll.DueDate = &due
		}
	}

	created, err := f.polls.CreatePoll(r.Context(), poll, choiceTexts, voterIDs)
	if err != nil {
		http.Redirect(w, r, "/polls?err=Could+not+create+poll", http.StatusFound)
		return
	}

	http.Redirect(w, r, "/polls/"+string(created.ID), http.StatusFound)
}

type pollPageData struct {
	User    domain.User
	Poll    domain.Poll
	Results []domain.ChoiceResult
	Ballot  []domain.Ballot
	CanVote bool
	Error   string
	Notice  string
}

func (f *Frontend) showPoll(w http.ResponseWriter, r *http.Request) {
	user, err := f.currentUser(r)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	pollID := domain.PollID(r.PathValue("id"))
	poll, err := f.polls.GetPoll(r.Context(), pollID)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	data := pollPageData{
		User:   user,
		Poll:   poll,
		Error:  r.URL.Query().Get("err"),
		Notice: r.URL.Query().Get("ok"),
	}

	if results, err := f.votes.Results(r.Context(), pollID); err == nil {
		data.Results = results
	}
	if ballot, err := f.votes.UserBallot(r.Context(), pollID, user.ID); err == nil {
		data.Ballot = ballot
	}
	if canVote, err := f.polls.CanVote(r.Context(), pollID, user.ID); err == nil {
		data.CanVote = canVote
	}

	f.render(w, "poll_body", data)
}

func (f *Frontend) handleVote(w http.ResponseWriter, r *http.Request) {
	user, err := f.currentUser(r)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	pollID := r.PathValue("id")
	choiceID := domain.ChoiceID(r.FormValue("choice_id"))
	origin := strings.Split(r.RemoteAddr, ":")[0]

	err = f.votes.CastVote(r.Context(), user.ID, choiceID, origin)
	if errors.Is(err, domain.ErrAlreadyVoted) {
		// The widget reuses the same form for first and follow-up ballots.
		err = f.votes.ChangeVote(r.Context(), user.ID, choiceID, origin)
	}

	switch {
	case err == nil:
		http.Redirect(w, r, "/polls/"+pollID+"?ok=Vote+recorded", http.StatusFound)
	case errors.Is(err, domain.ErrNotAuthorized):
		http.Redirect(w, r, "/polls/"+pollID+"?err=You+are+not+invited+to+this+poll", http.StatusFound)
	case errors.Is(err, domain.ErrSameChoice):
		http.Redirect(w, r, "/polls/"+pollID+"?err=That+is+already+your+vote", http.StatusFound)
	default:
		http.Redirect(w, r, "/polls/"+pollID+"?err=Vote+failed", http.StatusFound)
	}
}

func (f *Frontend) currentUser(r *http.Request) (domain.User, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return domain.User{}, fmt.Errorf("frontend: no session")
	}
	userID, err := f.verifier.Verify(cookie.Value)
	if err != nil {
		return domain.User{}, err
	}
	return f.accounts.GetUser(r.Context(), userID)
}

func (f *Frontend) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (f *Frontend) render(w http.ResponseWriter, body string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := f.templates.ExecuteTemplate(w, body, data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mcloones/mcloones"
	"github.com/mcloones/mcloones/middleware"
	"github.com/mcloones/mcloones/rewards"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

type profileBody struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type tabBody struct {
	Name  string `json:"name"`
	Route string `json:"route"`
	Label string `json:"label"`
}

type sessionBody struct {
	State           string       `json:"state"`
	UserID          string       `json:"user_id,omitempty"`
	Email           string       `json:"email,omitempty"`
	Profile         *profileBody `json:"profile,omitempty"`
	IsAuthenticated bool         `json:"is_authenticated"`
	IsManager       bool         `json:"is_manager"`
	Role            string       `json:"role,omitempty"`
	Destination     string       `json:"destination"`
	Capabilities    []string     `json:"capabilities"`
	Tabs            []tabBody    `json:"tabs"`
}

func sessionJSON(s mcloones.Session, v mcloones.AuthorizationView) sessionBody {
	out := sessionBody{
		State:           s.State.String(),
		IsAuthenticated: v.IsAuthenticated,
		IsManager:       v.IsManager,
		Role:            v.Role.String(),
		Destination:     string(v.Destination()),
		Capabilities:    []string{},
		Tabs:            []tabBody{},
	}
	if s.Identity != nil {
		out.UserID = s.Identity.ID
		out.Email = s.Identity.Email
	}
	if p := s.Profile; p != nil {
		out.Profile = &profileBody{ID: p.ID, Role: p.Role.String(), FullName: p.FullName, Email: p.Email}
	}
	for _, c := range v.Capabilities() {
		out.Capabilities = append(out.Capabilities, string(c))
	}
	for _, t := range v.Tabs() {
		out.Tabs = append(out.Tabs, tabBody{Name: t.Name, Route: t.Route, Label: t.Label})
	}
	return out
}

func (a *API) writeSession(w http.ResponseWriter, status int) {
	s, v := a.deps.Manager.Current()
	writeJSON(w, status, sessionJSON(s, v))
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "malformed login request")
		return
	}
	if err := a.deps.Manager.Login(r.Context(), req.Email, req.Password); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeSession(w, http.StatusOK)
}

func (a *API) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "malformed sign-up request")
		return
	}
	role, err := mcloones.ParseRole(req.Role)
	if err != nil {
		badRequest(w, "role must be customer or employee")
		return
	}
	err = a.deps.Manager.SignUp(r.Context(), mcloones.SignUpRequest{
		Email:       req.Email,
		Secret:      req.Password,
		Role:        role,
		DisplayName: req.FullName,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeSession(w, http.StatusCreated)
}

func (a *API) confirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		badRequest(w, "token is required")
		return
	}
	if err := a.deps.Identity.ConfirmEmail(r.Context(), req.Token); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	a.deps.Manager.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) oauthStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "malformed oauth request")
		return
	}
	url, err := a.deps.Manager.LoginWithOAuthProvider(r.Context(), req.Provider)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (a *API) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if msg := q.Get("error"); msg != "" {
		a.writeError(w, r, mcloones.ErrInvalidCredentials)
		return
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		badRequest(w, "state and code are required")
		return
	}
	if _, err := a.deps.Identity.CompleteOAuth(r.Context(), state, code); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeSession(w, http.StatusOK)
}

func (a *API) me(w http.ResponseWriter, _ *http.Request) {
	a.writeSession(w, http.StatusOK)
}

func (a *API) refreshProfile(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Manager.RefreshProfile(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeSession(w, http.StatusOK)
}

type balanceBody struct {
	EmployeeID string          `json:"employee_id"`
	Cents      int64           `json:"cents"`
	Display    string          `json:"display"`
	History    []rewards.Award `json:"history"`
}

func (a *API) balance(w http.ResponseWriter, r *http.Request) {
	actor := rewards.ActorOf(a.deps.Manager)
	target := actor.ID
	if id := strings.TrimSpace(r.URL.Query().Get("employee_id")); id != "" {
		target = id
	}

	cents, err := a.deps.Ledger.Balance(r.Context(), actor, target)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	history, err := a.deps.Ledger.History(r.Context(), actor, target, 20)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []rewards.Award{}
	}
	writeJSON(w, http.StatusOK, balanceBody{
		EmployeeID: target,
		Cents:      cents,
		Display:    rewards.FormatAmount(cents),
		History:    history,
	})
}

type rosterBody struct {
	EmployeeID string `json:"employee_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Cents      int64  `json:"cents"`
	Display    string `json:"display"`
}

func (a *API) roster(w http.ResponseWriter, r *http.Request) {
	entries, err := a.deps.Ledger.Roster(r.Context(), rewards.ActorOf(a.deps.Manager))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]rosterBody, 0, len(entries))
	for _, e := range entries {
		out = append(out, rosterBody{
			EmployeeID: e.Profile.ID,
			FullName:   e.Profile.FullName,
			Email:      e.Profile.Email,
			Cents:      e.BalanceCents,
			Display:    rewards.FormatAmount(e.BalanceCents),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) award(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmployeeID string `json:"employee_id"`
		Amount     string `json:"amount"`
		Reason     string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "malformed award request")
		return
	}
	cents, err := rewards.ParseAmount(req.Amount)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	award, err := a.deps.Ledger.Award(r.Context(), rewards.ActorOf(a.deps.Manager), req.EmployeeID, cents, req.Reason)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, award)
}

func (a *API) revoke(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}
	n, err := a.deps.Identity.RevokeUser(r.Context(), req.UserID)
	if err != nil {
		a.writeError(w, r, errors.Join(mcloones.ErrProviderUnavailable, err))
		return
	}
	v, _ := middleware.ViewFromContext(r.Context())
	a.logger.Info("sessions revoked", "user_id", req.UserID, "count", n, "by_role", v.Role.String())
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (a *API) tokenMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "Sign in to continue."})
		return
	}
	role, _ := mcloones.ParseRole(claims.Role)
	v := mcloones.ViewForRole(role)
	caps := []string{}
	for _, c := range v.Capabilities() {
		caps = append(caps, string(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      claims.UID,
		"email":        claims.Email,
		"role":         role.String(),
		"capabilities": caps,
	})
}

package httpapi

import (
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/go-chi/chi/v5"
)

type sessionView struct {
	goGuard.Session
	Current bool `json:"current"`
}

func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := a.svc.ListActiveSessions(r.Context(), p.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView{Session: s, Current: s.ID == p.SessionID})
	}
	writeData(w, out)
}

func (a *api) heartbeat(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := a.svc.Heartbeat(r.Context(), p.SessionID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) terminateSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	// Malformed ids cannot name a session; they never reach the store.
	id, err := internal.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	s, err := a.svc.GetSession(r.Context(), id)
	if err == nil && s.UserID != p.UserID {
		err = goGuard.ErrSessionNotFound
	}
	if err != nil {
		if errors.Is(err, goGuard.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		a.fail(w, r, err)
		return
	}

	if err := a.svc.TerminateSession(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, map[string]bool{"terminated": true})
}

func (a *api) terminateOthers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := a.svc.TerminateOtherSessions(r.Context(), p.UserID, p.SessionID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, map[string]int{"terminated": n})
}

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

const maxEventLimit = 500

// eventFilter parses ?since=RFC3339&limit=N&type=a&type=b.
func eventFilter(r *http.Request) (goGuard.EventFilter, string) {
	q := r.URL.Query()
	var f goGuard.EventFilter

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, "since must be an RFC 3339 timestamp"
		}
		f.Since = since
	}

	f.Limit = 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventLimit {
			return f, "limit must be between 1 and 500"
		}
		f.Limit = n
	}

	for _, t := range q["type"] {
		typ := goGuard.EventType(t)
		if !typ.Valid() {
			return f, "unknown event type " + strconv.Quote(t)
		}
		f.Types = append(f.Types, typ)
	}
	return f, ""
}

func (a *api) listEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	filter, problem := eventFilter(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	events, err := a.svc.ListSecurityEvents(r.Context(), p.UserID, filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if events == nil {
		events = []goGuard.SecurityEvent{}
	}
	writeData(w, events)
}

func (a *api) assessRisk(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	res, err := a.svc.AssessRisk(r.Context(), p.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, res)
}

package fakeapi

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-ticket-client/tickets"
)

func (b *Backend) ticketRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /tickets", b.listTickets)
	mux.HandleFunc("POST /tickets", b.createTicket)
	mux.HandleFunc("GET /tickets/my-tickets", b.filterTickets(func(t *tickets.Ticket, sub string) bool {
		return t.CreatedByUserID == sub
	}))
	mux.HandleFunc("GET /tickets/assigned-to-me", b.filterTickets(func(t *tickets.Ticket, sub string) bool {
		return t.AssignedUserID != nil && *t.AssignedUserID == sub
	}))
	mux.HandleFunc("GET /tickets/statistics", b.ticketStats)
	mux.HandleFunc("GET /tickets/dashboard", b.dashboard)
	mux.HandleFunc("GET /tickets/{id}", b.withTicket(func(w http.ResponseWriter, _ *http.Request, t *tickets.Ticket) {
		writeJSON(w, http.StatusOK, t)
	}))
	mux.HandleFunc("PUT /tickets/{id}", b.modifyTicket(updateTicket))
	mux.HandleFunc("PATCH /tickets/{id}/assign-team", b.modifyTicket(func(t *tickets.Ticket, r *http.Request) error {
		var req struct{ Team tickets.Team }
		if err := decode(r, &req); err != nil {
			return err
		}
		t.AssignedTeam = &req.Team
		return nil
	}))
	mux.HandleFunc("PATCH /tickets/{id}/assign-user", b.modifyTicket(func(t *tickets.Ticket, r *http.Request) error {
		var req struct {
			UserID string `json:"userId"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		t.AssignedUserID = &req.UserID
		t.Status = tickets.StatusAssigned
		return nil
	}))
	mux.HandleFunc("PATCH /tickets/{id}/close", b.modifyTicket(func(t *tickets.Ticket, _ *http.Request) error {
		t.Status = tickets.StatusClosed
		return nil
	}))
	mux.HandleFunc("PATCH /tickets/{id}/reopen", b.modifyTicket(func(t *tickets.Ticket, _ *http.Request) error {
		t.Status = tickets.StatusReopened
		return nil
	}))

	// The filter routes and the per-ticket collections share one shape, which
	// ServeMux cannot register as separate wildcard patterns.
	mux.HandleFunc("GET /tickets/{first}/{second}", b.ticketCollection)
	mux.HandleFunc("POST /tickets/{id}/messages", b.modifyTicket(addMessage))
	mux.HandleFunc("DELETE /tickets/{id}/messages/{item}", b.modifyTicket(func(t *tickets.Ticket, r *http.Request) error {
		id, _ := strconv.ParseInt(r.PathValue("item"), 10, 64)
		for i, m := range t.Messages {
			if m.ID == id {
				t.Messages = append(t.Messages[:i], t.Messages[i+1:]...)
				return nil
			}
		}
		return errNotFound
	}))
	mux.HandleFunc("POST /tickets/{id}/attachments", b.uploadAttachment)
	mux.HandleFunc("DELETE /tickets/{id}/attachments/{item}", b.modifyTicket(func(t *tickets.Ticket, r *http.Request) error {
		id, _ := strconv.ParseInt(r.PathValue("item"), 10, 64)
		for i, a := range t.Attachments {
			if a.ID == id {
				t.Attachments = append(t.Attachments[:i], t.Attachments[i+1:]...)
				delete(b.files, id)
				return nil
			}
		}
		return errNotFound
	}))
	mux.HandleFunc("GET /tickets/{id}/attachments/{item}/download", b.downloadAttachment)
}

var errNotFound = errors.New("not found")

// ListTickets returns a copy of every stored ticket, ordered by id
func (b *Backend) ListTickets() []tickets.Ticket {
	return b.sortedTickets(func(*tickets.Ticket) bool { return true })
}

func (b *Backend) sortedTickets(keep func(*tickets.Ticket) bool) []tickets.Ticket {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := make([]tickets.Ticket, 0)
	for _, t := range b.tickets {
		if keep(t) {
			list = append(list, *t)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (b *Backend) listTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list := b.sortedTickets(func(t *tickets.Ticket) bool {
		if s := q.Get("status"); s != "" && string(t.Status) != s {
			return false
		}
		if p := q.Get("priority"); p != "" && string(t.Priority) != p {
			return false
		}
		if term := strings.ToLower(q.Get("searchTerm")); term != "" &&
			!strings.Contains(strings.ToLower(t.Title+" "+t.Description), term) {
			return false
		}
		return true
	})

	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 {
		size = 10
	}
	total := len(list)
	start := min(page*size, total)
	end := min(start+size, total)
	pages := (total + size - 1) / size

	writeJSON(w, http.StatusOK, tickets.Page[tickets.Ticket]{
		Content:       list[start:end],
		TotalElements: int64(total),
		TotalPages:    pages,
		Number:        page,
		Size:          size,
		First:         page == 0,
		Last:          page >= pages-1,
	})
}

func (b *Backend) filterTickets(keep func(*tickets.Ticket, string) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := claimsFrom(r.Context()).Subject
		writeJSON(w, http.StatusOK, b.sortedTickets(func(t *tickets.Ticket) bool { return keep(t, sub) }))
	}
}

func (b *Backend) createTicket(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.currentUser(w, r); !ok {
		return
	}
	var req tickets.CreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Malformed request")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status":  http.StatusUnprocessableEntity,
			"message": "Validation failed",
			"errors":  map[string]string{"title": "must not be blank"},
		})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	t := &tickets.Ticket{
		ID:              b.newID(),
		Title:           req.Title,
		Description:     req.Description,
		Status:          tickets.StatusOpen,
		Type:            req.Type,
		Priority:        req.Priority,
		CreatedAt:       timestamp(),
		UpdatedAt:       timestamp(),
		CreatedByUserID: claimsFrom(r.Context()).Subject,
		Messages:        []tickets.Message{},
		Attachments:     []tickets.Attachment{},
	}
	b.tickets[t.ID] = t
	writeJSON(w, http.StatusCreated, t)
}

func (b *Backend) ticketStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, computeStats(b.ListTickets()))
}

func computeStats(list []tickets.Ticket) tickets.Stats {
	var s tickets.Stats
	for _, t := range list {
		s.TotalTickets++
		switch t.Status {
		case tickets.StatusOpen:
			s.OpenTickets++
		case tickets.StatusAssigned:
			s.AssignedTickets++
		case tickets.StatusInProgress:
			s.InProgressTickets++
		case tickets.StatusResolved:
			s.ResolvedTickets++
		case tickets.StatusReopened:
			s.ReopenedTickets++
		case tickets.StatusClosed:
			s.ClosedTickets++
		}
		if t.Status.IsActive() {
			s.ActiveTickets++
		}
	}
	if s.TotalTickets > 0 {
		s.CompletionRate = float64(s.ResolvedTickets+s.ClosedTickets) / float64(s.TotalTickets) * 100
	}
	return s
}

func (b *Backend) dashboard(w http.ResponseWriter, r *http.Request) {
	sub := claimsFrom(r.Context()).Subject
	var d tickets.Dashboard
	d.RecentTickets = []tickets.Ticket{}
	for _, t := range b.ListTickets() {
		if t.CreatedByUserID == sub {
			d.MyTicketsCount++
			d.RecentTickets = append(d.RecentTickets, t)
			switch t.Status {
			case tickets.StatusOpen:
				d.MyOpenTickets++
			case tickets.StatusInProgress:
				d.MyInProgressTickets++
			}
		}
		if t.AssignedUserID != nil && *t.AssignedUserID == sub {
			d.AssignedToMeCount++
		}
	}
	writeJSON(w, http.StatusOK, d)
}

func (b *Backend) ticketCollection(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")
	var keep func(*tickets.Ticket) bool
	switch first {
	case "status":
		keep = func(t *tickets.Ticket) bool { return string(t.Status) == second }
	case "priority":
		keep = func(t *tickets.Ticket) bool { return string(t.Priority) == second }
	case "team":
		keep = func(t *tickets.Ticket) bool { return t.AssignedTeam != nil && string(*t.AssignedTeam) == second }
	}
	if keep != nil {
		writeJSON(w, http.StatusOK, b.sortedTickets(keep))
		return
	}

	r.SetPathValue("id", first)
	b.withTicket(func(w http.ResponseWriter, r *http.Request, t *tickets.Ticket) {
		switch second {
		case "messages":
			writeJSON(w, http.StatusOK, t.Messages)
		case "attachments":
			writeJSON(w, http.StatusOK, t.Attachments)
		default:
			writeError(w, r, http.StatusNotFound, "No handler found")
		}
	})(w, r)
}

// withTicket resolves the {id} path value under the read lock
func (b *Backend) withTicket(fn func(http.ResponseWriter, *http.Request, *tickets.Ticket)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		b.mu.RLock()
		defer b.mu.RUnlock()
		t, ok := b.tickets[id]
		if err != nil || !ok {
			writeError(w, r, http.StatusNotFound, "Ticket not found with id: "+r.PathValue("id"))
			return
		}
		fn(w, r, t)
	}
}

// modifyTicket applies fn to the {id} ticket under the write lock and
// answers with the updated ticket, or with the item fn produced
func (b *Backend) modifyTicket(fn func(*tickets.Ticket, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		b.mu.Lock()
		defer b.mu.Unlock()
		t, ok := b.tickets[id]
		if err != nil || !ok {
			writeError(w, r, http.StatusNotFound, "Ticket not found with id: "+r.PathValue("id"))
			return
		}
		switch err := fn(t, r); {
		case errors.Is(err, errNotFound):
			writeError(w, r, http.StatusNotFound, "Item not found")
			return
		case err != nil:
			writeError(w, r, http.StatusBadRequest, "Malformed request")
			return
		}
		t.UpdatedAt = timestamp()

		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost:
			writeJSON(w, http.StatusCreated, t.Messages[len(t.Messages)-1])
		default:
			writeJSON(w, http.StatusOK, t)
		}
	}
}

func updateTicket(t *tickets.Ticket, r *http.Request) error {
	var req tickets.UpdateRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.AssignedTeam != nil {
		t.AssignedTeam = req.AssignedTeam
	}
	if req.AssignedUserID != nil {
		t.AssignedUserID = req.AssignedUserID
	}
	return nil
}

func addMessage(t *tickets.Ticket, r *http.Request) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := decode(r, &req); err != nil {
		return err
	}
	t.Messages = append(t.Messages, tickets.Message{
		ID:        int64(len(t.Messages) + 1),
		Content:   req.Content,
		CreatedAt: timestamp(),
		AuthorID:  claimsFrom(r.Context()).Subject,
	})
	return nil
}

func (b *Backend) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Missing file")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Unreadable file")
		return
	}

	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tickets[id]
	if !ok {
		writeError(w, r, http.StatusNotFound, "Ticket not found with id: "+r.PathValue("id"))
		return
	}
	att := tickets.Attachment{
		ID:         b.newID(),
		Filename:   header.Filename,
		UploadedAt: timestamp(),
	}
	att.FileURL = r.URL.Path + "/" + strconv.FormatInt(att.ID, 10) + "/download"
	t.Attachments = append(t.Attachments, att)
	b.files[att.ID] = content
	writeJSON(w, http.StatusCreated, att)
}

func (b *Backend) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("item"), 10, 64)
	b.mu.RLock()
	content, ok := b.files[id]
	b.mu.RUnlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "Attachment not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(content)
}

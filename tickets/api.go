package tickets

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-ticket-client/gateway"
)

const (
	PathTickets      = "/tickets"
	PathMyTickets    = "/tickets/my-tickets"
	PathAssignedToMe = "/tickets/assigned-to-me"
	PathDashboard    = "/tickets/dashboard"
	PathByStatus     = "/tickets/status/"
	PathByPriority   = "/tickets/priority/"
	PathByTeam       = "/tickets/team/"
	PathStatistics   = "/tickets/statistics"
)

type API struct {
	client *gateway.Client
}

func NewAPI(client *gateway.Client) *API {
	return &API{client: client}
}

// List returns one page of tickets matching f
func (a *API) List(ctx context.Context, f Filter) (*Page[Ticket], error) {
	var page Page[Ticket]
	if err := a.client.Get(ctx, PathTickets, f.Query(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (a *API) Get(ctx context.Context, id int64) (*Ticket, error) {
	var t Ticket
	if err := a.client.Get(ctx, ticketPath(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (a *API) MyTickets(ctx context.Context) ([]Ticket, error) {
	return a.list(ctx, PathMyTickets)
}

func (a *API) AssignedToMe(ctx context.Context) ([]Ticket, error) {
	return a.list(ctx, PathAssignedToMe)
}

func (a *API) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if err := a.client.Get(ctx, PathDashboard, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (a *API) Create(ctx context.Context, req CreateRequest) (*Ticket, error) {
	var t Ticket
	if err := a.client.Post(ctx, PathTickets, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (a *API) Update(ctx context.Context, id int64, req UpdateRequest) (*Ticket, error) {
	return a.modify(ctx, http.MethodPut, ticketPath(id), req)
}

func (a *API) ByStatus(ctx context.Context, status Status) ([]Ticket, error) {
	return a.list(ctx, PathByStatus+url.PathEscape(string(status)))
}

func (a *API) ByPriority(ctx context.Context, priority Priority) ([]Ticket, error) {
	return a.list(ctx, PathByPriority+url.PathEscape(string(priority)))
}

func (a *API) ByTeam(ctx context.Context, team Team) ([]Ticket, error) {
	return a.list(ctx, PathByTeam+url.PathEscape(string(team)))
}

func (a *API) Statistics(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := a.client.Get(ctx, PathStatistics, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *API) AssignTeam(ctx context.Context, id int64, team Team) (*Ticket, error) {
	return a.modify(ctx, http.MethodPatch, ticketPath(id)+"/assign-team", map[string]Team{"team": team})
}

func (a *API) AssignUser(ctx context.Context, id int64, userID string) (*Ticket, error) {
	return a.modify(ctx, http.MethodPatch, ticketPath(id)+"/assign-user", map[string]string{"userId": userID})
}

func (a *API) Close(ctx context.Context, id int64) (*Ticket, error) {
	return a.modify(ctx, http.MethodPatch, ticketPath(id)+"/close", struct{}{})
}

func (a *API) Reopen(ctx context.Context, id int64) (*Ticket, error) {
	return a.modify(ctx, http.MethodPatch, ticketPath(id)+"/reopen", struct{}{})
}

func (a *API) Messages(ctx context.Context, ticketID int64) ([]Message, error) {
	var msgs []Message
	if err := a.client.Get(ctx, messagesPath(ticketID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (a *API) CreateMessage(ctx context.Context, ticketID int64, content string) (*Message, error) {
	var m Message
	if err := a.client.Post(ctx, messagesPath(ticketID), map[string]string{"content": content}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *API) DeleteMessage(ctx context.Context, ticketID, messageID int64) error {
	return a.client.Delete(ctx, messagesPath(ticketID)+"/"+strconv.FormatInt(messageID, 10))
}

func (a *API) Attachments(ctx context.Context, ticketID int64) ([]Attachment, error) {
	var atts []Attachment
	if err := a.client.Get(ctx, attachmentsPath(ticketID), nil, &atts); err != nil {
		return nil, err
	}
	return atts, nil
}

// Upload sends content as the multipart "file" field
func (a *API) Upload(ctx context.Context, ticketID int64, filename string, content io.Reader) (*Attachment, error) {
	var att Attachment
	if err := a.client.PostMultipart(ctx, attachmentsPath(ticketID), "file", filename, content, &att); err != nil {
		return nil, err
	}
	return &att, nil
}

// Download returns the raw attachment bytes
func (a *API) Download(ctx context.Context, ticketID, attachmentID int64) ([]byte, error) {
	return a.client.GetRaw(ctx, attachmentsPath(ticketID)+"/"+strconv.FormatInt(attachmentID, 10)+"/download")
}

func (a *API) DeleteAttachment(ctx context.Context, ticketID, attachmentID int64) error {
	return a.client.Delete(ctx, attachmentsPath(ticketID)+"/"+strconv.FormatInt(attachmentID, 10))
}

// Query encodes the non-zero filter fields as request parameters
func (f Filter) Query() url.Values {
	q := url.Values{}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("status", string(f.Status))
	set("priority", string(f.Priority))
	set("assignedUserId", f.AssignedUserID)
	set("createdByUserId", f.CreatedByUserID)
	set("searchTerm", f.SearchTerm)
	set("sortBy", f.SortBy)
	set("sortDirection", f.SortDirection)
	q.Set("page", strconv.Itoa(f.Page))
	if f.Size > 0 {
		q.Set("size", strconv.Itoa(f.Size))
	}
	return q
}

func (a *API) list(ctx context.Context, path string) ([]Ticket, error) {
	var list []Ticket
	if err := a.client.Get(ctx, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (a *API) modify(ctx context.Context, method, path string, body any) (*Ticket, error) {
	var t Ticket
	if err := a.client.Send(ctx, method, path, body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func ticketPath(id int64) string {
	return PathTickets + "/" + strconv.FormatInt(id, 10)
}

func messagesPath(ticketID int64) string {
	return ticketPath(ticketID) + "/messages"
}

func attachmentsPath(ticketID int64) string {
	return ticketPath(ticketID) + "/attachments"
}

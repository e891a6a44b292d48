// Package tickets wraps the ticket, message and attachment endpoints of the ticket API.
package tickets

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusReopened   Status = "REOPENED"
	StatusClosed     Status = "CLOSED"
)

type Type string

const (
	TypeBug            Type = "BUG"
	TypeFeatureRequest Type = "FEATURE_REQUEST"
	TypeAssistance     Type = "ASSISTANCE"
	TypeIncident       Type = "INCIDENT"
	TypeReclamation    Type = "RECLAMATION"
	TypeRelance        Type = "RELANCE"
)

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

type Team string

const (
	TeamSupport     Team = "SUPPORT"
	TeamDevelopment Team = "DEVELOPMENT"
)

type Ticket struct {
	ID              int64        `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Status          Status       `json:"status"`
	Type            Type         `json:"type"`
	Priority        Priority     `json:"priority"`
	CreatedAt       string       `json:"createdAt"`
	UpdatedAt       string       `json:"updatedAt"`
	CreatedByUserID string       `json:"createdByUserId"`
	AssignedTeam    *Team        `json:"assignedTeam,omitempty"`
	AssignedUserID  *string      `json:"assignedUserId,omitempty"`
	Messages        []Message    `json:"messages"`
	Attachments     []Attachment `json:"attachments"`
}

type Message struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	AuthorID  string `json:"authorId"`
}

type Attachment struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	FileURL    string `json:"fileUrl"`
	UploadedAt string `json:"uploadedAt"`
}

type CreateRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        Type     `json:"type"`
	Priority    Priority `json:"priority"`
}

// UpdateRequest changes only the fields that are set
type UpdateRequest struct {
	Title          *string   `json:"title,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Status         *Status   `json:"status,omitempty"`
	Priority       *Priority `json:"priority,omitempty"`
	AssignedTeam   *Team     `json:"assignedTeam,omitempty"`
	AssignedUserID *string   `json:"assignedUserId,omitempty"`
}

// Filter selects a page of tickets. Zero values are not sent.
type Filter struct {
	Status          Status
	Priority        Priority
	AssignedUserID  string
	CreatedByUserID string
	SearchTerm      string
	Page            int
	Size            int
	SortBy          string
	SortDirection   string
}

type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

type Stats struct {
	TotalTickets      int64   `json:"totalTickets"`
	OpenTickets       int64   `json:"openTickets"`
	InProgressTickets int64   `json:"inProgressTickets"`
	AssignedTickets   int64   `json:"assignedTickets"`
	ResolvedTickets   int64   `json:"resolvedTickets"`
	ReopenedTickets   int64   `json:"reopenedTickets"`
	ClosedTickets     int64   `json:"closedTickets"`
	ActiveTickets     int64   `json:"activeTickets"`
	CompletionRate    float64 `json:"completionRate"`
}

type Dashboard struct {
	MyTicketsCount      int64    `json:"myTicketsCount"`
	AssignedToMeCount   int64    `json:"assignedToMeCount"`
	MyOpenTickets       int64    `json:"myOpenTickets"`
	MyInProgressTickets int64    `json:"myInProgressTickets"`
	RecentTickets       []Ticket `json:"recentTickets"`
	GlobalStats         *Stats   `json:"globalStats,omitempty"`
	UrgentTickets       []Ticket `json:"urgentTickets,omitempty"`
	UnassignedTickets   []Ticket `json:"unassignedTickets,omitempty"`
}

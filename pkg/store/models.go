package store

import "time"

// TaskStatus is the state-machine value for a Task row (spec.md §4.6).
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether status is a write-once terminal state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Conversation is spec.md's Conversation entity.
type Conversation struct {
	ID        string
	OrgSlug   string
	UserID    string
	AgentSlug string
	CreatedAt time.Time
}

// Task is spec.md's Task entity.
type Task struct {
	ID             string
	ConversationID string
	OrgSlug        string
	UserID         string
	AgentSlug      string
	Status         TaskStatus
	ErrorKind      string
	ErrorMessage   string
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Plan is spec.md's Plan entity (the artifact header row; its content lives
// in PlanVersion rows).
type Plan struct {
	ID             string
	ConversationID string
	OrgSlug        string
	UserID         string
	AgentSlug      string
	CurrentVersion int
	Version        int
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PlanVersion is one immutable snapshot of a Plan.
type PlanVersion struct {
	ID            string
	PlanID        string
	VersionNumber int
	Content       []byte // JSON
	PromptInputs  []byte // JSON
	DeletedAt     *time.Time
	CreatedAt     time.Time
}

// Deliverable is spec.md's Deliverable entity.
type Deliverable struct {
	ID             string
	ConversationID string
	OrgSlug        string
	UserID         string
	AgentSlug      string
	Type           string
	CurrentVersion int
	Version        int
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeliverableVersion is one immutable snapshot of a Deliverable.
type DeliverableVersion struct {
	ID            string
	DeliverableID string
	VersionNumber int
	Content       []byte
	PromptInputs  []byte
	DeletedAt     *time.Time
	CreatedAt     time.Time
}

// UsageRecord is spec.md's append-only UsageRecord entity.
type UsageRecord struct {
	ID                string
	OrgSlug           string
	UserID            string
	ConversationID    string
	AgentSlug         string
	Provider          string
	Model             string
	CallerType        string
	CallerName        string
	PromptTokens      int
	CompletionTokens  int
	CachedInputTokens int
	ThinkingTokens    int
	CostCents         float64
	LatencyMS         int
	Status            string
	CreatedAt         time.Time
}

// ObservabilityEventRow is the durable-sink representation of spec.md's
// append-only ObservabilityEvent entity.
type ObservabilityEventRow struct {
	ID             int64
	OrgSlug        string
	UserID         string
	ConversationID string
	AgentSlug      string
	TaskID         string
	SourceApp      string
	EventType      string
	Status         string
	Message        string
	Progress       *float64
	Step           string
	Payload        []byte
	CreatedAt      time.Time
}

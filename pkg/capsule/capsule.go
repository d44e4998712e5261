// Package capsule implements the Identity Capsule (spec.md C1): the
// immutable per-request identity record that travels whole through every
// internal boundary of the governed execution pipeline.
//
// A Capsule is created outside this package by whatever accepted the
// inbound request (the HTTP layer, in practice) and is never fabricated
// here. Seven fields are fixed for the life of the request; three start
// out NIL and may each transition to a concrete id exactly once, by the
// runner that creates the corresponding artifact.
package capsule

import (
	"fmt"

	"github.com/agentgov/pipeline/pkg/errs"
)

// NIL is the reserved sentinel for "not yet assigned".
const NIL = "NIL"

// Raw is the unvalidated identity payload as received from a caller, before
// it has been checked against the authenticated subject and turned into a
// Capsule. Every field maps 1:1 onto Capsule's immutable fields plus the
// three assignable ones.
type Raw struct {
	OrgSlug        string `json:"orgSlug"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	AgentSlug      string `json:"agentSlug"`
	AgentType      string `json:"agentType"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	TaskID         string `json:"taskId"`
	PlanID         string `json:"planId"`
	DeliverableID  string `json:"deliverableId"`
}

// Capsule is the immutable identity record described in spec.md §4.1.
//
// The seven identity fields below (OrgSlug through Model) never change
// after Accept. TaskID,
// PlanID, and DeliverableID default to NIL and may each be set exactly
// once via the corresponding TryAssign method. There is no other mutation
// path — any helper that would need to accept a subset of these fields
// instead of the whole Capsule is a bug (enforced by convention and by the
// tests in this package: every exported function here takes or returns a
// full Capsule, never a partial view).
type Capsule struct {
	OrgSlug        string
	UserID         string
	ConversationID string
	AgentSlug      string
	AgentType      string
	Provider       string
	Model          string

	TaskID        string
	PlanID        string
	DeliverableID string

	// TraceID and SpanID correlate every ObservabilityEvent and
	// UsageRecord emitted during this request to a single distributed
	// trace. They are empty unless a caller sets them through WithTrace,
	// which no component of this module calls; not part of the seven-field
	// immutability contract (they describe observability plumbing, not
	// identity).
	TraceID string
	SpanID  string
}

// Accept validates raw against the seven required immutable fields and the
// authenticated caller's subject, returning a new Capsule. It rejects with
// errs.BadRequest if any of the seven fields is empty, and errs.Unauthorized
// if raw.UserID does not equal authenticatedUserID.
//
// The three assignable fields default to NIL when raw supplies an empty
// string, so a fresh request capsule always starts with all three unset.
func Accept(raw Raw, authenticatedUserID string) (Capsule, error) {
	missing := requiredFieldName(raw)
	if missing != "" {
		return Capsule{}, errs.New(errs.BadRequest, fmt.Sprintf("capsule missing required field %q", missing))
	}

	if raw.UserID != authenticatedUserID {
		return Capsule{}, errs.New(errs.Unauthorized, "capsule userId does not match authenticated subject")
	}

	return Capsule{
		OrgSlug:        raw.OrgSlug,
		UserID:         raw.UserID,
		ConversationID: raw.ConversationID,
		AgentSlug:      raw.AgentSlug,
		AgentType:      raw.AgentType,
		Provider:       raw.Provider,
		Model:          raw.Model,
		TaskID:         orNil(raw.TaskID),
		PlanID:         orNil(raw.PlanID),
		DeliverableID:  orNil(raw.DeliverableID),
	}, nil
}

// requiredFieldName returns the name of the first empty immutable field, or
// "" if all seven are present.
func requiredFieldName(raw Raw) string {
	switch {
	case raw.OrgSlug == "":
		return "orgSlug"
	case raw.UserID == "":
		return "userId"
	case raw.ConversationID == "":
		return "conversationId"
	case raw.AgentSlug == "":
		return "agentSlug"
	case raw.AgentType == "":
		return "agentType"
	case raw.Provider == "":
		return "provider"
	case raw.Model == "":
		return "model"
	default:
		return ""
	}
}

func orNil(v string) string {
	if v == "" {
		return NIL
	}
	return v
}

// TryAssignTaskID returns a copy of c with TaskID set to id. It fails with
// errs.Conflict-shaped ErrImmutable semantics (reported as errs.Internal —
// this is a programming error, not a request error: the Dispatcher assigns
// task ids exactly once right after task creation) unless c.TaskID is
// currently NIL.
func (c Capsule) TryAssignTaskID(id string) (Capsule, error) {
	if c.TaskID != NIL {
		return c, errImmutable("taskId")
	}
	next := c
	next.TaskID = id
	return next, nil
}

// TryAssignPlanID returns a copy of c with PlanID set to id, subject to the
// same once-only rule as TryAssignTaskID.
func (c Capsule) TryAssignPlanID(id string) (Capsule, error) {
	if c.PlanID != NIL {
		return c, errImmutable("planId")
	}
	next := c
	next.PlanID = id
	return next, nil
}

// TryAssignDeliverableID returns a copy of c with DeliverableID set to id,
// subject to the same once-only rule as TryAssignTaskID.
func (c Capsule) TryAssignDeliverableID(id string) (Capsule, error) {
	if c.DeliverableID != NIL {
		return c, errImmutable("deliverableId")
	}
	next := c
	next.DeliverableID = id
	return next, nil
}

func errImmutable(field string) error {
	return errs.New(errs.Internal, fmt.Sprintf("capsule field %q already assigned; it cannot be reassigned", field))
}

// WithTrace returns a copy of c carrying the given trace/span ids. Calling
// it again with the same ids is harmless; it is not part of the capsule's
// own immutability contract since it carries no identity information.
func (c Capsule) WithTrace(traceID, spanID string) Capsule {
	next := c
	next.TraceID = traceID
	next.SpanID = spanID
	return next
}

// Raw converts c back to the wire shape for echoing in a response envelope
// (spec.md §4.7 step 8: "the response always echoes the capsule").
func (c Capsule) Raw() Raw {
	return Raw{
		OrgSlug:        c.OrgSlug,
		UserID:         c.UserID,
		ConversationID: c.ConversationID,
		AgentSlug:      c.AgentSlug,
		AgentType:      c.AgentType,
		Provider:       c.Provider,
		Model:          c.Model,
		TaskID:         c.TaskID,
		PlanID:         c.PlanID,
		DeliverableID:  c.DeliverableID,
	}
}

// SameIdentity reports whether two capsules agree on all seven immutable
// fields. Used by tests exercising spec.md §8 property 1 ("the response's
// context has the same values... as the request's context").
func SameIdentity(a, b Capsule) bool {
	return a.OrgSlug == b.OrgSlug &&
		a.UserID == b.UserID &&
		a.ConversationID == b.ConversationID &&
		a.AgentSlug == b.AgentSlug &&
		a.AgentType == b.AgentType &&
		a.Provider == b.Provider &&
		a.Model == b.Model
}

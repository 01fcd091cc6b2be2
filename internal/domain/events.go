package domain

// EventType tags the records sent to connected clients.
type EventType string

const (
	EventExamStatus       EventType = "examStatus"
	EventParticipantCount EventType = "participantCount"
	EventSubmittedCount   EventType = "submittedCount"
	EventStart            EventType = "start"
	EventEnd              EventType = "end"

	// Addressed to a single connection, never broadcast.
	EventSubmitted EventType = "submitted"
	EventError     EventType = "error"
)

// Event is the envelope written to every connection.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ExamStatus describes the active exam. ID is nil when the session is idle.
type ExamStatus struct {
	ID               *string `json:"id"`
	Name             string  `json:"name,omitempty"`
	Assigned         bool    `json:"assigned"`
	InProgress       bool    `json:"inProgress"`
	TimeLimitSeconds int     `json:"timeLimitSeconds,omitempty"`
}

type ParticipantCount struct {
	Count int      `json:"count"`
	Names []string `json:"names"`
}

type SubmittedCount struct {
	Count     int                 `json:"count"`
	Summaries []SubmissionSummary `json:"summaries"`
}

type Start struct {
	TimeLimitSeconds int `json:"timeLimit"`
}

type End struct {
	Summaries []SubmissionSummary `json:"summaries"`
}

type Submitted struct {
	Submission SubmissionSummary `json:"submission"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewExamStatusEvent(s ExamStatus) Event {
	return Event{Type: EventExamStatus, Payload: s}
}

func NewParticipantCountEvent(names []string) Event {
	return Event{Type: EventParticipantCount, Payload: ParticipantCount{Count: len(names), Names: names}}
}

func NewSubmittedCountEvent(summaries []SubmissionSummary) Event {
	return Event{Type: EventSubmittedCount, Payload: SubmittedCount{Count: len(summaries), Summaries: summaries}}
}

func NewErrorEvent(code, message string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Code: code, Message: message}}
}

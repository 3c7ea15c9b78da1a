package orchestration

import "time"

// EventType is the kind of event emitted to the transport while a turn runs.
// Per turn the sequence is: zero or more log, then questions or message, then done.
type EventType string

const (
	EventLog       EventType = "log"       // Progress note (planning, worker start/finish)
	EventMessage   EventType = "message"   // Final synthesized answer
	EventQuestions EventType = "questions" // Run suspended waiting for answers
	EventError     EventType = "error"     // Non-fatal problem worth surfacing
	EventDone      EventType = "done"      // Turn finished (completed or suspended)
)

// StreamEvent is one orchestration event.
type StreamEvent struct {
	Type     EventType `json:"type"`
	ThreadID string    `json:"thread_id"`
	Data     any       `json:"data,omitempty"`
	At       time.Time `json:"at"`
}

// LogData is the payload of a log event.
type LogData struct {
	Stage   string     `json:"stage"`
	Worker  WorkerName `json:"worker,omitempty"`
	Step    int        `json:"step"`
	Message string     `json:"message"`
}

// MessageData is the payload of a message event.
type MessageData struct {
	Content string `json:"content"`
}

// QuestionsData is the payload of a questions event.
type QuestionsData struct {
	Reason    string       `json:"reason"`
	Worker    WorkerName   `json:"worker,omitempty"`
	Mode      QuestionMode `json:"mode"`
	Questions []Question   `json:"questions"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Worker  WorkerName `json:"worker,omitempty"`
	Code    string     `json:"code,omitempty"`
	Message string     `json:"message"`
}

// DoneData is the payload of a done event.
type DoneData struct {
	Done          bool  `json:"done"`
	AwaitingHuman bool  `json:"awaiting_human"`
	Phase         Phase `json:"phase"`
}

package orchestration

// WorkerName identifies one of the fixed set of workers the orchestrator can plan.
type WorkerName string

const (
	WorkerChat            WorkerName = "chat"
	WorkerResearch        WorkerName = "research"
	WorkerTutor           WorkerName = "tutor"
	WorkerTroubleshooting WorkerName = "troubleshooting"
	WorkerSummarizer      WorkerName = "summarizer"
)

// Terminal markers stored in ConversationState.Next.
// They never collide with worker names.
const (
	NextSynthesize = "__synthesize__"
	NextHuman      = "__human__"
	NextEnd        = "__end__"
)

// AllWorkers returns the workers in canonical execution order.
// Planners use this order when they merge several intents into one plan.
func AllWorkers() []WorkerName {
	return []WorkerName{
		WorkerSummarizer,
		WorkerResearch,
		WorkerTroubleshooting,
		WorkerTutor,
		WorkerChat,
	}
}

// IsValid reports whether w belongs to the fixed worker enumeration.
func (w WorkerName) IsValid() bool {
	switch w {
	case WorkerChat, WorkerResearch, WorkerTutor, WorkerTroubleshooting, WorkerSummarizer:
		return true
	default:
		return false
	}
}

// String returns the identifier as a plain string.
func (w WorkerName) String() string {
	return string(w)
}

// Title returns a human readable label used for attribution in synthesized answers.
func (w WorkerName) Title() string {
	switch w {
	case WorkerChat:
		return "Assistant"
	case WorkerResearch:
		return "Research"
	case WorkerTutor:
		return "Tutor"
	case WorkerTroubleshooting:
		return "Troubleshooting"
	case WorkerSummarizer:
		return "Summary"
	default:
		return string(w)
	}
}

// ParseWorkerName converts a raw identifier into a WorkerName.
// The second return value is false when the identifier is not a known worker.
func ParseWorkerName(s string) (WorkerName, bool) {
	w := WorkerName(s)
	return w, w.IsValid()
}

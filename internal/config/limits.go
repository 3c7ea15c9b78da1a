package config

import "time"

const (
	// DefaultCompactionThreshold is the window count at which a summarizer
	// pass is forced to the front of the next plan.
	DefaultCompactionThreshold = 12

	// DefaultCompactionKeepMessages is how many recent messages survive compaction.
	DefaultCompactionKeepMessages = 4

	// DefaultMaxPlanSteps caps the number of workers planned for one turn.
	DefaultMaxPlanSteps = 5

	// MaxPlanStepsLimit is the hard upper bound accepted from configuration.
	MaxPlanStepsLimit = 10

	// DefaultMaxClarificationQuestions is N in a batch clarification.
	DefaultMaxClarificationQuestions = 3

	// MaxClarificationQuestionsLimit is the hard upper bound accepted from configuration.
	MaxClarificationQuestionsLimit = 10

	// DefaultWorkerTimeout bounds a single worker invocation.
	DefaultWorkerTimeout = 60 * time.Second

	// MaxWorkerRetries bounds the optional dispatch retry.
	MaxWorkerRetries = 3

	// DefaultRetrievalTopK is how many evidence items research asks for.
	DefaultRetrievalTopK = 5

	// MaxRetrievalTopK is the hard upper bound accepted from configuration.
	MaxRetrievalTopK = 50

	// MaxMessageLength limits a single user message.
	// Long pastes belong in the document pipeline, not in chat.
	MaxMessageLength = 20000

	// MaxAnswerLength limits a single clarification answer.
	MaxAnswerLength = 2000
)

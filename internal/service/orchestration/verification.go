package orchestration

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"labmate/internal/domain"
	"labmate/internal/domain/models/orchestration"
)

// CustomerQuestionID is the id of the verification question.
const CustomerQuestionID = "customer_id"

var customerIDPattern = regexp.MustCompile(`^[A-Z]{2,5}-[0-9]{3,8}$`)

// CustomerIDVerifier gates the troubleshooting worker behind a customer id,
// for deployments where equipment support is tied to an account.
type CustomerIDVerifier struct {
	attempts int
}

// NewCustomerIDVerifier returns a verifier that re-asks up to attempts times.
func NewCustomerIDVerifier(attempts int) *CustomerIDVerifier {
	if attempts <= 0 {
		attempts = 3
	}
	return &CustomerIDVerifier{attempts: attempts}
}

// Required implements VerificationFlow.
func (v *CustomerIDVerifier) Required(state *orchestration.ConversationState, worker orchestration.WorkerName) bool {
	if worker != orchestration.WorkerTroubleshooting {
		return false
	}
	if state.CustomerID != "" {
		return false
	}
	return orchestration.ContextString(state.PendingContext, orchestration.ContextKeyVerifiedCustomer) == ""
}

// Question implements VerificationFlow.
func (v *CustomerIDVerifier) Question() orchestration.Question {
	return orchestration.Question{
		ID:       CustomerQuestionID,
		Text:     "Before I look into your equipment, what is your customer ID (for example LAB-12345)?",
		Type:     orchestration.QuestionText,
		Required: true,
	}
}

// Verify implements VerificationFlow.
func (v *CustomerIDVerifier) Verify(_ context.Context, answer string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(answer))
	err := validation.Validate(id,
		validation.Required,
		validation.Match(customerIDPattern).Error("must look like LAB-12345"),
	)
	if err != nil {
		return "", &domain.ValidationError{Message: fmt.Sprintf("customer ID %s", err.Error())}
	}
	return id, nil
}

// MaxAttempts implements VerificationFlow.
func (v *CustomerIDVerifier) MaxAttempts() int { return v.attempts }

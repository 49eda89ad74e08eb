package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DecisionAction represents the kind of policy event being audited
type DecisionAction string

const (
	DecisionActionPaymentAllowed  DecisionAction = "payment_allowed"
	DecisionActionPaymentBlocked  DecisionAction = "payment_blocked"
	DecisionActionSettingsUpdated DecisionAction = "settings_updated"
)

// DecisionLog is an audit trail entry for a policy decision or settings change
type DecisionLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Action     DecisionAction  `json:"action" db:"action"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Recipient  string          `json:"recipient,omitempty" db:"recipient"`
	Context    string          `json:"context,omitempty" db:"context"`
	PolicyName string          `json:"policy,omitempty" db:"policy_name"`
	BlockedBy  *string         `json:"blocked_by,omitempty" db:"blocked_by"`
	Reason     string          `json:"reason,omitempty" db:"reason"`
	DailySpent decimal.Decimal `json:"daily_spent" db:"daily_spent"`
	RequestID  string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the DecisionLog model
func (DecisionLog) TableName() string {
	return "policy_decisions"
}

// NewDecisionLog creates a new DecisionLog instance
func NewDecisionLog(userID string, action DecisionAction) *DecisionLog {
	return &DecisionLog{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// NewDecisionLogFromVerdict records the outcome of a payment check
func NewDecisionLogFromVerdict(userID string, amount decimal.Decimal, verdict *PolicyVerdict) *DecisionLog {
	action := DecisionActionPaymentAllowed
	if !verdict.Allowed {
		action = DecisionActionPaymentBlocked
	}

	log := NewDecisionLog(userID, action)
	log.Amount = amount
	log.PolicyName = verdict.PolicyName
	log.Reason = verdict.Reason
	log.DailySpent = verdict.DailySpent
	if verdict.BlockedBy != nil {
		blockedBy := string(*verdict.BlockedBy)
		log.BlockedBy = &blockedBy
	}
	return log
}

// WithPayment sets the payment recipient and the agent's conversational context
func (d *DecisionLog) WithPayment(recipient, context string) *DecisionLog {
	d.Recipient = recipient
	d.Context = context
	return d
}

// WithRequest sets request metadata
func (d *DecisionLog) WithRequest(requestID string) *DecisionLog {
	d.RequestID = requestID
	return d
}

package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"worklog/internal/core"
)

// RuleAction is what happened to a classification rule.
type RuleAction string

const (
	ActionUpsert RuleAction = "upsert"
	ActionDelete RuleAction = "delete"
)

// RuleChangedMessage announces a rule mutation. Consumers treat it as a hint
// and re-read the rule table rather than trusting the payload.
type RuleChangedMessage struct {
	ID             string              `json:"id"`
	AppName        string              `json:"appName"`
	Action         RuleAction          `json:"action"`
	Classification core.Classification `json:"classification,omitempty"`
	Source         core.RuleSource     `json:"source,omitempty"`
	ChangedBy      string              `json:"changedBy,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// NewRuleUpsertedMessage builds the event for a saved rule.
func NewRuleUpsertedMessage(rule core.ClassificationRule, changedBy string) *RuleChangedMessage {
	return &RuleChangedMessage{
		ID:             uuid.NewString(),
		AppName:        rule.AppName,
		Action:         ActionUpsert,
		Classification: rule.Classification,
		Source:         rule.Source,
		ChangedBy:      changedBy,
		Timestamp:      time.Now().UTC(),
	}
}

// NewRuleDeletedMessage builds the event for a removed rule.
func NewRuleDeletedMessage(appName, changedBy string) *RuleChangedMessage {
	return &RuleChangedMessage{
		ID:        uuid.NewString(),
		AppName:   core.NormalizeAppName(appName),
		Action:    ActionDelete,
		ChangedBy: changedBy,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RuleChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RuleChangedMessageFromJSON decodes and sanity-checks a delivery body.
func RuleChangedMessageFromJSON(data []byte) (*RuleChangedMessage, error) {
	var msg RuleChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Action {
	case ActionUpsert, ActionDelete:
	default:
		return nil, fmt.Errorf("unknown rule action %q", msg.Action)
	}
	if msg.AppName == "" {
		return nil, fmt.Errorf("rule message %s has no app name", msg.ID)
	}
	return &msg, nil
}

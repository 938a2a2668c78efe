package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/ledgersync/internal/common"
)

// Amounts are integer minor units (cents) so they survive JSON and protobuf
// number encoding without rounding.

type Account struct {
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
	Balance  int64  `json:"balance"`
	Archived bool   `json:"archived,omitempty"`
}

type Category struct {
	Name string `json:"name"`
	// Kind is "income" or "expense".
	Kind     string `json:"kind,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

type Transaction struct {
	AccountID  string `json:"account_id"`
	CategoryID string `json:"category_id,omitempty"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency,omitempty"`
	Note       string `json:"note,omitempty"`
	OccurredAt int64  `json:"occurred_at,omitempty"`
}

type Budget struct {
	CategoryID string `json:"category_id"`
	Amount     int64  `json:"amount"`
	// Period is "monthly", "weekly" or "yearly".
	Period string `json:"period,omitempty"`
}

type Goal struct {
	Name         string `json:"name"`
	TargetAmount int64  `json:"target_amount"`
	SavedAmount  int64  `json:"saved_amount"`
	Deadline     int64  `json:"deadline,omitempty"`
}

var requiredFields = map[EntityType][]string{
	EntityAccount:     {"name"},
	EntityCategory:    {"name"},
	EntityTransaction: {"account_id", "amount"},
	EntityBudget:      {"category_id", "amount"},
	EntityGoal:        {"name", "target_amount"},
}

// ValidateNew checks that fields carry everything a new row of kind t needs.
func ValidateNew(t EntityType, fields Fields) error {
	req, ok := requiredFields[t]
	if !ok {
		return fmt.Errorf("%w: %q", common.ErrUnknownEntityType, string(t))
	}
	var missing []string
	for _, name := range req {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s requires %s", t, strings.Join(missing, ", "))
	}
	return nil
}

// Decode converts row fields into the typed record for t.
func Decode(t EntityType, fields Fields) (any, error) {
	var dst any
	switch t {
	case EntityAccount:
		dst = &Account{}
	case EntityCategory:
		dst = &Category{}
	case EntityTransaction:
		dst = &Transaction{}
	case EntityBudget:
		dst = &Budget{}
	case EntityGoal:
		dst = &Goal{}
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownEntityType, string(t))
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return dst, nil
}

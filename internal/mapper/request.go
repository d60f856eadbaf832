package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/papermes/internal/apperrors"
)

// TransactionRequest is the loosely-typed transaction a caller or the model sends.
// Source and destination hold either an account id or an account name; which one
// depends on Type.
type TransactionRequest struct {
	Type               string           `json:"type"`
	SourceAccount      AccountRef       `json:"source_account,omitempty" validate:"required"`
	DestinationAccount AccountRef       `json:"destination_account,omitempty" validate:"required"`
	Amount             *decimal.Decimal `json:"amount" validate:"required"`
	CurrencyCode       string           `json:"currency_code,omitempty" validate:"omitempty,iso4217"`
	Description        string           `json:"description" validate:"required"`
	Date               string           `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CategoryName       string           `json:"category_name,omitempty"`
	BudgetName         string           `json:"budget_name,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	Tags               []string         `json:"tags,omitempty"`
}

// AccountRef is an account id or name. Models often send numeric ids, so numbers are
// accepted and kept as their decimal text.
type AccountRef string

func (r *AccountRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = AccountRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("account must be a string or number, got %s", b)
	}
	*r = AccountRef(n.String())
	return nil
}

// Batch is the argument set of the create_transactions tool.
type Batch struct {
	Transactions []TransactionRequest `json:"transactions"`
	GroupTitle   string               `json:"group_title,omitempty"`
}

// DecodeBatch converts an untrusted argument bag into a Batch.
func DecodeBatch(args map[string]any) (Batch, error) {
	var b Batch
	raw, ok := args["transactions"]
	if !ok || raw == nil {
		return b, apperrors.NewValidationError("transactions", "transactions is required")
	}
	reqs, err := DecodeRequests(raw)
	if err != nil {
		return b, err
	}
	b.Transactions = reqs

	if title, ok := args["group_title"]; ok && title != nil {
		s, ok := title.(string)
		if !ok {
			return b, apperrors.NewValidationError("group_title", fmt.Sprintf("group_title must be a string, got %T", title))
		}
		b.GroupTitle = s
	}
	return b, nil
}

// DecodeRequests converts a JSON-decoded list of transactions into requests.
func DecodeRequests(raw any) ([]TransactionRequest, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, apperrors.NewValidationError("transactions", fmt.Sprintf("transactions must be a list, got %T", raw))
	}

	reqs := make([]TransactionRequest, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &apperrors.ValidationError{Field: "transactions", Index: i, Message: fmt.Sprintf("element is %T, want object", item)}
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, &apperrors.ValidationError{Field: "transactions", Index: i, Message: err.Error()}
		}
		var req TransactionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, &apperrors.ValidationError{Field: "transactions", Index: i, Message: fmt.Sprintf("invalid transaction: %v", err)}
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

package firefly

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/papermes/internal/apperrors"
)

// TransactionSplit is one leg of a transaction group.
//
// Optional fields use omitempty so that absent values are left out of the request
// body instead of being sent as null.
type TransactionSplit struct {
	Type        TransactionKind `json:"type"`
	Date        Date            `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`

	SourceID        ID     `json:"source_id,omitempty"`
	SourceName      string `json:"source_name,omitempty"`
	DestinationID   ID     `json:"destination_id,omitempty"`
	DestinationName string `json:"destination_name,omitempty"`

	CurrencyID          ID               `json:"currency_id,omitempty"`
	CurrencyCode        string           `json:"currency_code,omitempty"`
	ForeignAmount       *decimal.Decimal `json:"foreign_amount,omitempty"`
	ForeignCurrencyID   ID               `json:"foreign_currency_id,omitempty"`
	ForeignCurrencyCode string           `json:"foreign_currency_code,omitempty"`
	BudgetID            ID               `json:"budget_id,omitempty"`
	BudgetName          string           `json:"budget_name,omitempty"`
	CategoryID          ID               `json:"category_id,omitempty"`
	CategoryName        string           `json:"category_name,omitempty"`
	BillID              ID               `json:"bill_id,omitempty"`
	BillName            string           `json:"bill_name,omitempty"`
	Reconciled          *bool            `json:"reconciled,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	Tags                []string         `json:"tags,omitempty"`
	InternalReference   string           `json:"internal_reference,omitempty"`
	ExternalID          string           `json:"external_id,omitempty"`
	ExternalURL         string           `json:"external_url,omitempty"`
	OriginalSource      string           `json:"original_source,omitempty"`
	RecurrenceID        ID               `json:"recurrence_id,omitempty"`
	BunqPaymentID       string           `json:"bunq_payment_id,omitempty"`
	ImportHashV2        string           `json:"import_hash_v2,omitempty"`

	SepaCC      string `json:"sepa_cc,omitempty"`
	SepaCTOp    string `json:"sepa_ct_op,omitempty"`
	SepaCTID    string `json:"sepa_ct_id,omitempty"`
	SepaDB      string `json:"sepa_db,omitempty"`
	SepaCountry string `json:"sepa_country,omitempty"`
	SepaEP      string `json:"sepa_ep,omitempty"`
	SepaCI      string `json:"sepa_ci,omitempty"`
	SepaBatchID string `json:"sepa_batch_id,omitempty"`

	InterestDate *Date `json:"interest_date,omitempty"`
	BookDate     *Date `json:"book_date,omitempty"`
	ProcessDate  *Date `json:"process_date,omitempty"`
	DueDate      *Date `json:"due_date,omitempty"`
	PaymentDate  *Date `json:"payment_date,omitempty"`
	InvoiceDate  *Date `json:"invoice_date,omitempty"`

	// Set by the ledger on stored splits.
	TransactionJournalID ID `json:"transaction_journal_id,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type transactionSplitRecord TransactionSplit

// MarshalJSON writes amounts with the scale they were parsed with, so an amount
// read as "42.10" is sent as "42.10" and not "42.1".
func (s TransactionSplit) MarshalJSON() ([]byte, error) {
	rec := struct {
		transactionSplitRecord
		Amount        string  `json:"amount"`
		ForeignAmount *string `json:"foreign_amount,omitempty"`
	}{
		transactionSplitRecord: transactionSplitRecord(s),
		Amount:                 formatAmount(s.Amount),
	}
	if s.ForeignAmount != nil {
		fa := formatAmount(*s.ForeignAmount)
		rec.ForeignAmount = &fa
	}
	return marshalRecord(rec, s.Extra)
}

// formatAmount renders d without dropping trailing fractional zeros.
func formatAmount(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func (s *TransactionSplit) UnmarshalJSON(data []byte) error {
	var rec transactionSplitRecord
	extra, err := unmarshalRecord(data, &rec, "type", "date", "amount", "description")
	if err != nil {
		return err
	}
	*s = TransactionSplit(rec)
	s.Extra = extra
	return nil
}

// Validate checks a split we are about to send. The kind must be one of the closed
// set of transaction kinds, and for withdrawals, deposits and transfers exactly one
// of the id/name references must be set on each side.
func (s TransactionSplit) Validate() error {
	kind, err := ParseTransactionKind(string(s.Type))
	if err != nil {
		return err
	}
	if s.Date.IsZero() {
		return &apperrors.SchemaError{Field: "date", Message: "date is required"}
	}
	if s.Amount.IsNegative() {
		return &apperrors.SchemaError{Field: "amount", Message: fmt.Sprintf("amount must not be negative, got %s", s.Amount)}
	}
	if strings.TrimSpace(s.Description) == "" {
		return &apperrors.SchemaError{Field: "description", Message: "description is required"}
	}

	switch kind {
	case TransactionKindWithdrawal, TransactionKindDeposit, TransactionKindTransfer:
		if (s.SourceID == "") == (s.SourceName == "") {
			return &apperrors.SchemaError{Field: "source", Message: "exactly one of source_id and source_name must be set"}
		}
		if (s.DestinationID == "") == (s.DestinationName == "") {
			return &apperrors.SchemaError{Field: "destination", Message: "exactly one of destination_id and destination_name must be set"}
		}
	}
	return nil
}

// StorePolicy carries the ledger's per-request processing flags.
type StorePolicy struct {
	ErrorIfDuplicateHash bool
	ApplyRules           bool
	FireWebhooks         bool
}

// DefaultStorePolicy enables duplicate detection, rules and webhooks.
func DefaultStorePolicy() StorePolicy {
	return StorePolicy{ErrorIfDuplicateHash: true, ApplyRules: true, FireWebhooks: true}
}

// TransactionStore is the request body of POST /transactions.
type TransactionStore struct {
	ErrorIfDuplicateHash bool               `json:"error_if_duplicate_hash"`
	ApplyRules           bool               `json:"apply_rules"`
	FireWebhooks         bool               `json:"fire_webhooks"`
	GroupTitle           string             `json:"group_title,omitempty"`
	Transactions         []TransactionSplit `json:"transactions"`
}

// NewTransactionStore builds and validates a store request.
func NewTransactionStore(splits []TransactionSplit, groupTitle string, policy StorePolicy) (*TransactionStore, error) {
	if len(splits) == 0 {
		return nil, &apperrors.SchemaError{Field: "transactions", Message: "at least one split is required"}
	}
	for i, s := range splits {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("split %d: %w", i, err)
		}
	}
	return &TransactionStore{
		ErrorIfDuplicateHash: policy.ErrorIfDuplicateHash,
		ApplyRules:           policy.ApplyRules,
		FireWebhooks:         policy.FireWebhooks,
		GroupTitle:           groupTitle,
		Transactions:         splits,
	}, nil
}

// TransactionGroupAttributes are the attributes of a stored transaction group.
type TransactionGroupAttributes struct {
	GroupTitle   string             `json:"group_title,omitempty"`
	CreatedAt    string             `json:"created_at,omitempty"`
	UpdatedAt    string             `json:"updated_at,omitempty"`
	User         ID                 `json:"user,omitempty"`
	Transactions []TransactionSplit `json:"transactions"`

	Extra map[string]json.RawMessage `json:"-"`
}

type transactionGroupAttributesRecord TransactionGroupAttributes

func (a TransactionGroupAttributes) MarshalJSON() ([]byte, error) {
	return marshalRecord(transactionGroupAttributesRecord(a), a.Extra)
}

func (a *TransactionGroupAttributes) UnmarshalJSON(data []byte) error {
	var rec transactionGroupAttributesRecord
	extra, err := unmarshalRecord(data, &rec, "transactions")
	if err != nil {
		return err
	}
	*a = TransactionGroupAttributes(rec)
	a.Extra = extra
	return nil
}

// TransactionGroup is a stored group of splits.
type TransactionGroup struct {
	ID         ID                         `json:"id"`
	Type       string                     `json:"type"`
	Attributes TransactionGroupAttributes `json:"attributes"`
}

// JournalIDs returns the journal id of every split, in order.
func (g *TransactionGroup) JournalIDs() []ID {
	ids := make([]ID, 0, len(g.Attributes.Transactions))
	for _, s := range g.Attributes.Transactions {
		ids = append(ids, s.TransactionJournalID)
	}
	return ids
}

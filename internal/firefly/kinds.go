package firefly

import (
	"fmt"
	"strings"

	"github.com/dvloznov/papermes/internal/apperrors"
)

// AccountKind is the ledger account type. The set is open: kinds introduced by newer
// ledger versions decode as-is and report Known() == false.
type AccountKind string

const (
	AccountKindAsset          AccountKind = "asset"
	AccountKindExpense        AccountKind = "expense"
	AccountKindImport         AccountKind = "import"
	AccountKindRevenue        AccountKind = "revenue"
	AccountKindCash           AccountKind = "cash"
	AccountKindLiability      AccountKind = "liability"
	AccountKindLiabilities    AccountKind = "liabilities"
	AccountKindInitialBalance AccountKind = "initial-balance"
	AccountKindReconciliation AccountKind = "reconciliation"
)

var knownAccountKinds = map[AccountKind]struct{}{
	AccountKindAsset:          {},
	AccountKindExpense:        {},
	AccountKindImport:         {},
	AccountKindRevenue:        {},
	AccountKindCash:           {},
	AccountKindLiability:      {},
	AccountKindLiabilities:    {},
	AccountKindInitialBalance: {},
	AccountKindReconciliation: {},
}

// Known reports whether k is one of the account kinds this package models.
func (k AccountKind) Known() bool {
	_, ok := knownAccountKinds[k]
	return ok
}

// TransactionKind is the type of a transaction split.
type TransactionKind string

const (
	TransactionKindWithdrawal     TransactionKind = "withdrawal"
	TransactionKindDeposit        TransactionKind = "deposit"
	TransactionKindTransfer       TransactionKind = "transfer"
	TransactionKindReconciliation TransactionKind = "reconciliation"
	TransactionKindOpeningBalance TransactionKind = "opening balance"
)

// ParseTransactionKind parses an authored transaction kind. Unlike account kinds the set
// is closed; anything else is a SchemaError.
func ParseTransactionKind(s string) (TransactionKind, error) {
	switch k := TransactionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case TransactionKindWithdrawal, TransactionKindDeposit, TransactionKindTransfer,
		TransactionKindReconciliation, TransactionKindOpeningBalance:
		return k, nil
	case "opening-balance", "opening_balance":
		return TransactionKindOpeningBalance, nil
	}
	return "", &apperrors.SchemaError{Field: "type", Message: fmt.Sprintf("unknown transaction kind %q", s)}
}

package firefly

import (
	"encoding/json"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/papermes/internal/apperrors"
)

func testDate() Date {
	return NewDate(civil.Date{Year: 2024, Month: 1, Day: 15})
}

func TestTransactionSplit_MarshalOmitsAbsentFields(t *testing.T) {
	split := TransactionSplit{
		Type:            TransactionKindWithdrawal,
		Date:            testDate(),
		Amount:          decimal.RequireFromString("123.45"),
		Description:     "Groceries",
		SourceName:      "Checking Account",
		DestinationName: "Aldi",
	}

	data, err := json.Marshal(split)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "withdrawal", raw["type"])
	assert.Equal(t, "2024-01-15", raw["date"])
	assert.Equal(t, "123.45", raw["amount"], "amount must be a JSON string")
	assert.Equal(t, "Checking Account", raw["source_name"])
	assert.Equal(t, "Aldi", raw["destination_name"])

	for _, key := range []string{"source_id", "destination_id", "category_name", "notes", "tags", "foreign_amount", "book_date", "reconciled"} {
		assert.NotContains(t, raw, key)
	}
}

func TestTransactionSplit_AmountRoundTrip(t *testing.T) {
	inputs := []string{"123.45", "0.01", "15.99", "1000000.000001", "42.10", "100.00", "7"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			split := TransactionSplit{
				Type:        TransactionKindDeposit,
				Date:        testDate(),
				Amount:      decimal.RequireFromString(in),
				Description: "x",
			}
			data, err := json.Marshal(split)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"amount":"`+in+`"`)

			var back TransactionSplit
			require.NoError(t, json.Unmarshal(data, &back))
			assert.True(t, back.Amount.Equal(decimal.RequireFromString(in)), "got %s", back.Amount)
			assert.Equal(t, decimal.RequireFromString(in).String(), back.Amount.String())
			assert.Equal(t, in, formatAmount(back.Amount))
		})
	}
}

func TestTransactionSplit_ForeignAmountKeepsScale(t *testing.T) {
	fa := decimal.RequireFromString("9.90")
	split := TransactionSplit{
		Type:          TransactionKindWithdrawal,
		Date:          testDate(),
		Amount:        decimal.RequireFromString("10.50"),
		Description:   "x",
		ForeignAmount: &fa,
		Extra:         map[string]json.RawMessage{"amount": json.RawMessage(`"1"`), "zoom": json.RawMessage(`true`)},
	}
	data, err := json.Marshal(split)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "10.50", raw["amount"])
	assert.Equal(t, "9.90", raw["foreign_amount"])
	assert.Equal(t, true, raw["zoom"])
	assert.Equal(t, "withdrawal", raw["type"])
}

func TestTransactionSplit_PreservesUnknownFields(t *testing.T) {
	payload := `{
		"type": "withdrawal",
		"date": "2024-01-15T00:00:00+00:00",
		"amount": "12.340000000000",
		"description": "Coffee",
		"source_id": 1,
		"destination_name": "Cafe",
		"transaction_journal_id": "77",
		"notes": null,
		"order": 0,
		"zoom_level": null,
		"has_attachments": false
	}`

	var split TransactionSplit
	require.NoError(t, json.Unmarshal([]byte(payload), &split))

	assert.Equal(t, ID("1"), split.SourceID)
	assert.Equal(t, ID("77"), split.TransactionJournalID)
	assert.Equal(t, "2024-01-15", split.Date.String())
	assert.True(t, split.Amount.Equal(decimal.RequireFromString("12.34")))
	assert.Empty(t, split.Notes)
	require.Len(t, split.Extra, 3)
	assert.JSONEq(t, `false`, string(split.Extra["has_attachments"]))

	out, err := json.Marshal(split)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.JSONEq(t, `0`, string(raw["order"]))
	assert.JSONEq(t, `null`, string(raw["zoom_level"]))
	assert.JSONEq(t, `false`, string(raw["has_attachments"]))
	assert.NotContains(t, raw, "notes")
}

func TestTransactionSplit_UnmarshalSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{
			name:    "missing amount",
			payload: `{"type":"withdrawal","date":"2024-01-15","description":"x"}`,
			field:   "amount",
		},
		{
			name:    "amount not a decimal",
			payload: `{"type":"withdrawal","date":"2024-01-15","amount":"abc","description":"x"}`,
		},
		{
			name:    "bad date",
			payload: `{"type":"withdrawal","date":"15/01/2024","amount":"1","description":"x"}`,
			field:   "date",
		},
		{
			name:    "description wrong kind",
			payload: `{"type":"withdrawal","date":"2024-01-15","amount":"1","description":42}`,
			field:   "description",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var split TransactionSplit
			err := json.Unmarshal([]byte(tt.payload), &split)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrSchema)
			if tt.field != "" {
				var se *apperrors.SchemaError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.field, se.Field)
			}
		})
	}
}

func TestTransactionSplit_Validate(t *testing.T) {
	base := func() TransactionSplit {
		return TransactionSplit{
			Type:            TransactionKindWithdrawal,
			Date:            testDate(),
			Amount:          decimal.RequireFromString("10"),
			Description:     "Lunch",
			SourceName:      "Checking",
			DestinationName: "Restaurant",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*TransactionSplit)
		wantErr bool
	}{
		{name: "valid withdrawal", mutate: func(*TransactionSplit) {}},
		{name: "opening balance alias", mutate: func(s *TransactionSplit) { s.Type = "opening-balance" }},
		{name: "unknown kind", mutate: func(s *TransactionSplit) { s.Type = "refund" }, wantErr: true},
		{name: "negative amount", mutate: func(s *TransactionSplit) { s.Amount = decimal.RequireFromString("-1") }, wantErr: true},
		{name: "empty description", mutate: func(s *TransactionSplit) { s.Description = "  " }, wantErr: true},
		{name: "missing date", mutate: func(s *TransactionSplit) { s.Date = Date{} }, wantErr: true},
		{name: "both source refs", mutate: func(s *TransactionSplit) { s.SourceID = "1" }, wantErr: true},
		{name: "no destination", mutate: func(s *TransactionSplit) { s.DestinationName = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrSchema)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewTransactionStore_TwoSplits(t *testing.T) {
	splits := []TransactionSplit{
		{Type: TransactionKindWithdrawal, Date: testDate(), Amount: decimal.RequireFromString("15.99"), Description: "Food", SourceName: "Checking", DestinationName: "Aldi", CategoryName: "Groceries"},
		{Type: TransactionKindWithdrawal, Date: testDate(), Amount: decimal.RequireFromString("8.50"), Description: "Socks", SourceName: "Checking", DestinationName: "Aldi", CategoryName: "Clothing"},
	}

	store, err := NewTransactionStore(splits, "Aldi trip", DefaultStorePolicy())
	require.NoError(t, err)

	data, err := json.Marshal(store)
	require.NoError(t, err)

	var decoded struct {
		ErrorIfDuplicateHash bool   `json:"error_if_duplicate_hash"`
		ApplyRules           bool   `json:"apply_rules"`
		FireWebhooks         bool   `json:"fire_webhooks"`
		GroupTitle           string `json:"group_title"`
		Transactions         []struct {
			Amount string `json:"amount"`
		} `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, decoded.ErrorIfDuplicateHash)
	assert.True(t, decoded.ApplyRules)
	assert.True(t, decoded.FireWebhooks)
	assert.Equal(t, "Aldi trip", decoded.GroupTitle)
	require.Len(t, decoded.Transactions, 2)

	sum := decimal.Zero
	for _, tx := range decoded.Transactions {
		sum = sum.Add(decimal.RequireFromString(tx.Amount))
	}
	assert.True(t, sum.Equal(decimal.RequireFromString("24.49")), "sum = %s", sum)
}

func TestNewTransactionStore_Empty(t *testing.T) {
	_, err := NewTransactionStore(nil, "", DefaultStorePolicy())
	assert.ErrorIs(t, err, apperrors.ErrSchema)
}

func TestAccount_OpenKindsAndExtras(t *testing.T) {
	payload := `{
		"type": "accounts",
		"id": "5",
		"attributes": {
			"name": "Savings",
			"type": "crypto-wallet",
			"currency_code": "EUR",
			"active": true,
			"created_at": "2024-01-01T00:00:00+00:00"
		},
		"links": {"self": "https://ledger/api/v1/accounts/5"}
	}`

	var acc Account
	require.NoError(t, json.Unmarshal([]byte(payload), &acc))

	assert.Equal(t, ID("5"), acc.ID)
	assert.Equal(t, AccountKind("crypto-wallet"), acc.Attributes.Type)
	assert.False(t, acc.Attributes.Type.Known())
	assert.True(t, AccountKindLiabilities.Known())
	require.NotNil(t, acc.Attributes.Active)
	assert.True(t, *acc.Attributes.Active)
	assert.Nil(t, acc.Attributes.Notes)
	assert.Contains(t, acc.Attributes.Extra, "created_at")
	assert.Contains(t, acc.Extra, "links")

	out, err := json.Marshal(acc)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"created_at"`)
	assert.Contains(t, string(out), `"links"`)
}

func TestAccount_MissingName(t *testing.T) {
	var acc Account
	err := json.Unmarshal([]byte(`{"id":"1","attributes":{"type":"asset"}}`), &acc)
	assert.ErrorIs(t, err, apperrors.ErrSchema)
}

func TestID_AcceptsNumbers(t *testing.T) {
	var ids []ID
	require.NoError(t, json.Unmarshal([]byte(`["12", 13, null]`), &ids))
	assert.Equal(t, []ID{"12", "13", ""}, ids)

	var bad ID
	assert.Error(t, json.Unmarshal([]byte(`true`), &bad))
}

func TestParseTransactionKind(t *testing.T) {
	tests := map[string]TransactionKind{
		"withdrawal":      TransactionKindWithdrawal,
		" Deposit ":       TransactionKindDeposit,
		"transfer":        TransactionKindTransfer,
		"reconciliation":  TransactionKindReconciliation,
		"opening balance": TransactionKindOpeningBalance,
		"opening-balance": TransactionKindOpeningBalance,
	}
	for in, want := range tests {
		got, err := ParseTransactionKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseTransactionKind("payment")
	assert.ErrorIs(t, err, apperrors.ErrSchema)
}

package firefly

import "encoding/json"

// AccountAttributes holds the attributes of a ledger account.
type AccountAttributes struct {
	Name                  string      `json:"name"`
	Type                  AccountKind `json:"type"`
	AccountRole           string      `json:"account_role,omitempty"`
	CurrencyID            ID          `json:"currency_id,omitempty"`
	CurrencyCode          string      `json:"currency_code,omitempty"`
	CurrencySymbol        string      `json:"currency_symbol,omitempty"`
	CurrencyDecimalPlaces *int        `json:"currency_decimal_places,omitempty"`
	CurrentBalance        string      `json:"current_balance,omitempty"`
	CurrentBalanceDate    string      `json:"current_balance_date,omitempty"`
	Notes                 *string     `json:"notes,omitempty"`
	MonthlyPaymentDate    string      `json:"monthly_payment_date,omitempty"`
	CreditCardType        string      `json:"credit_card_type,omitempty"`
	AccountNumber         string      `json:"account_number,omitempty"`
	IBAN                  string      `json:"iban,omitempty"`
	BIC                   string      `json:"bic,omitempty"`
	VirtualBalance        string      `json:"virtual_balance,omitempty"`
	OpeningBalance        string      `json:"opening_balance,omitempty"`
	OpeningBalanceDate    string      `json:"opening_balance_date,omitempty"`
	LiabilityType         string      `json:"liability_type,omitempty"`
	LiabilityDirection    string      `json:"liability_direction,omitempty"`
	Interest              string      `json:"interest,omitempty"`
	InterestPeriod        string      `json:"interest_period,omitempty"`
	Active                *bool       `json:"active,omitempty"`
	IncludeNetWorth       *bool       `json:"include_net_worth,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type accountAttributesRecord AccountAttributes

func (a AccountAttributes) MarshalJSON() ([]byte, error) {
	return marshalRecord(accountAttributesRecord(a), a.Extra)
}

func (a *AccountAttributes) UnmarshalJSON(data []byte) error {
	var rec accountAttributesRecord
	extra, err := unmarshalRecord(data, &rec, "name", "type")
	if err != nil {
		return err
	}
	*a = AccountAttributes(rec)
	a.Extra = extra
	return nil
}

// Account is a ledger account as returned by the accounts endpoints.
type Account struct {
	ID         ID                `json:"id"`
	Type       string            `json:"type"`
	Attributes AccountAttributes `json:"attributes"`

	Extra map[string]json.RawMessage `json:"-"`
}

type accountRecord Account

func (a Account) MarshalJSON() ([]byte, error) {
	if a.Type == "" {
		a.Type = "accounts"
	}
	return marshalRecord(accountRecord(a), a.Extra)
}

func (a *Account) UnmarshalJSON(data []byte) error {
	var rec accountRecord
	extra, err := unmarshalRecord(data, &rec, "id", "attributes")
	if err != nil {
		return err
	}
	*a = Account(rec)
	a.Extra = extra
	return nil
}

// AccountPage is one page of the account listing.
type AccountPage = Envelope[[]Account]

package mapper

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dvloznov/papermes/internal/apperrors"
	"github.com/dvloznov/papermes/internal/firefly"
)

// Mapper turns transaction requests into ledger splits. It performs no I/O.
type Mapper struct {
	defaultCurrency string
	now             func() time.Time
	validate        *validator.Validate
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithClock overrides the clock used for the default transaction date.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) { m.now = now }
}

// New creates a Mapper that fills in defaultCurrency when a request has none.
func New(defaultCurrency string, opts ...Option) *Mapper {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	m := &Mapper{
		defaultCurrency: strings.ToUpper(strings.TrimSpace(defaultCurrency)),
		now:             time.Now,
		validate:        v,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InvalidKindMessage is the message reported for a transaction type we do not author.
func InvalidKindMessage(kind string) string {
	return fmt.Sprintf("Invalid transaction type: %s. Must be 'withdrawal', 'deposit', or 'transfer'", kind)
}

// Map validates req and converts it into a split.
//
// Source and destination are routed by kind:
//
//	withdrawal: source by name, destination by name
//	deposit:    source by name, destination by id
//	transfer:   source by id,   destination by id
func (m *Mapper) Map(req TransactionRequest) (firefly.TransactionSplit, error) {
	var split firefly.TransactionSplit

	kind := firefly.TransactionKind(strings.ToLower(strings.TrimSpace(req.Type)))
	switch kind {
	case firefly.TransactionKindWithdrawal, firefly.TransactionKindDeposit, firefly.TransactionKindTransfer:
	default:
		return split, apperrors.NewValidationError("type", InvalidKindMessage(req.Type))
	}

	req.SourceAccount = AccountRef(strings.TrimSpace(string(req.SourceAccount)))
	req.DestinationAccount = AccountRef(strings.TrimSpace(string(req.DestinationAccount)))
	req.Description = strings.TrimSpace(req.Description)
	req.Date = strings.TrimSpace(req.Date)
	req.CurrencyCode = strings.ToUpper(strings.TrimSpace(req.CurrencyCode))
	if req.CurrencyCode == "" {
		req.CurrencyCode = m.defaultCurrency
	}

	if err := m.validate.Struct(req); err != nil {
		return split, toValidationError(err)
	}
	if !req.Amount.IsPositive() {
		return split, apperrors.NewValidationError("amount", fmt.Sprintf("amount must be greater than zero, got %s", req.Amount))
	}

	date := firefly.DateOf(m.now())
	if req.Date != "" {
		parsed, err := firefly.ParseDate(req.Date)
		if err != nil {
			return split, apperrors.NewValidationError("date", fmt.Sprintf("date must be in YYYY-MM-DD format, got %q", req.Date))
		}
		date = parsed
	}

	split = firefly.TransactionSplit{
		Type:         kind,
		Date:         date,
		Amount:       *req.Amount,
		Description:  req.Description,
		CurrencyCode: req.CurrencyCode,
		CategoryName: strings.TrimSpace(req.CategoryName),
		BudgetName:   strings.TrimSpace(req.BudgetName),
		Notes:        req.Notes,
		Tags:         req.Tags,
	}

	src, dst := string(req.SourceAccount), string(req.DestinationAccount)
	switch kind {
	case firefly.TransactionKindWithdrawal:
		split.SourceName = src
		split.DestinationName = dst
	case firefly.TransactionKindDeposit:
		split.SourceName = src
		split.DestinationID = firefly.ID(dst)
	case firefly.TransactionKindTransfer:
		split.SourceID = firefly.ID(src)
		split.DestinationID = firefly.ID(dst)
	}
	return split, nil
}

// MapAll maps every request into one split each, preserving order. The first
// invalid request aborts the batch; its position is recorded on the error.
func (m *Mapper) MapAll(reqs []TransactionRequest) ([]firefly.TransactionSplit, error) {
	if len(reqs) == 0 {
		return nil, apperrors.NewValidationError("transactions", "at least one transaction is required")
	}

	splits := make([]firefly.TransactionSplit, 0, len(reqs))
	for i, req := range reqs {
		split, err := m.Map(req)
		if err != nil {
			var ve *apperrors.ValidationError
			if errors.As(err, &ve) && len(reqs) > 1 {
				ve.Index = i
			}
			return nil, err
		}
		splits = append(splits, split)
	}
	return splits, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.NewValidationError("", err.Error())
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperrors.NewValidationError(field, fmt.Sprintf("%s is required", field))
	case "iso4217":
		return apperrors.NewValidationError(field, fmt.Sprintf("%s must be an ISO 4217 currency code, got %q", field, fe.Value()))
	case "datetime":
		return apperrors.NewValidationError(field, fmt.Sprintf("%s must be in YYYY-MM-DD format, got %q", field, fe.Value()))
	}
	return apperrors.NewValidationError(field, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
}

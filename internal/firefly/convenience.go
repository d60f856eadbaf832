package firefly

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SplitOptions carries the optional fields of the single-split helpers below.
type SplitOptions struct {
	Date         *Date
	CategoryName string
	BudgetName   string
	Notes        string
	Tags         []string
	GroupTitle   string
	Policy       *StorePolicy
}

func (o SplitOptions) apply(s *TransactionSplit) (string, StorePolicy) {
	if o.Date != nil {
		s.Date = *o.Date
	} else {
		s.Date = DateOf(time.Now())
	}
	s.CategoryName = o.CategoryName
	s.BudgetName = o.BudgetName
	s.Notes = o.Notes
	s.Tags = o.Tags

	policy := DefaultStorePolicy()
	if o.Policy != nil {
		policy = *o.Policy
	}
	return o.GroupTitle, policy
}

func (c *Client) storeOne(ctx context.Context, s TransactionSplit, opts SplitOptions) (*TransactionGroup, error) {
	title, policy := opts.apply(&s)
	return c.StoreTransactionGroup(ctx, []TransactionSplit{s}, title, policy)
}

// CreateWithdrawal books an expense from an asset account to an expense account,
// both referenced by id.
func (c *Client) CreateWithdrawal(ctx context.Context, amount decimal.Decimal, description string, sourceID, destinationID ID, opts SplitOptions) (*TransactionGroup, error) {
	return c.storeOne(ctx, TransactionSplit{
		Type:          TransactionKindWithdrawal,
		Amount:        amount,
		Description:   description,
		SourceID:      sourceID,
		DestinationID: destinationID,
	}, opts)
}

// CreateDeposit books income from a revenue account (by name) into an asset
// account (by id).
func (c *Client) CreateDeposit(ctx context.Context, amount decimal.Decimal, description, sourceName string, destinationID ID, opts SplitOptions) (*TransactionGroup, error) {
	return c.storeOne(ctx, TransactionSplit{
		Type:          TransactionKindDeposit,
		Amount:        amount,
		Description:   description,
		SourceName:    sourceName,
		DestinationID: destinationID,
	}, opts)
}

// CreateTransfer moves money between two asset accounts.
func (c *Client) CreateTransfer(ctx context.Context, amount decimal.Decimal, description string, sourceID, destinationID ID, opts SplitOptions) (*TransactionGroup, error) {
	return c.storeOne(ctx, TransactionSplit{
		Type:          TransactionKindTransfer,
		Amount:        amount,
		Description:   description,
		SourceID:      sourceID,
		DestinationID: destinationID,
	}, opts)
}

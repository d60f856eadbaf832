package firefly

import (
	"context"

	"google.golang.org/api/iterator"
)

// AccountIterator walks every page of the account listing.
type AccountIterator struct {
	ctx    context.Context
	client *Client
	opts   ListAccountsOptions

	buf      []Account
	nextPage int
	done     bool
}

// Accounts returns an iterator over all accounts matching opts. opts.Page is the
// first page fetched; zero starts at the beginning.
func (c *Client) Accounts(ctx context.Context, opts ListAccountsOptions) *AccountIterator {
	first := opts.Page
	if first < 1 {
		first = 1
	}
	return &AccountIterator{ctx: ctx, client: c, opts: opts, nextPage: first}
}

// Next returns the next account, or iterator.Done when there are no more.
func (it *AccountIterator) Next() (*Account, error) {
	for len(it.buf) == 0 {
		if it.done {
			return nil, iterator.Done
		}
		if err := it.fetch(); err != nil {
			return nil, err
		}
	}
	acc := it.buf[0]
	it.buf = it.buf[1:]
	return &acc, nil
}

func (it *AccountIterator) fetch() error {
	opts := it.opts
	opts.Page = it.nextPage
	page, err := it.client.ListAccounts(it.ctx, opts)
	if err != nil {
		return err
	}
	it.buf = page.Data
	it.nextPage++

	p := page.Meta.Pagination
	if len(page.Data) == 0 || p == nil || p.TotalPages == 0 || p.CurrentPage >= p.TotalPages {
		it.done = true
	}
	return nil
}

// ListAllAccounts collects every page of the account listing.
func (c *Client) ListAllAccounts(ctx context.Context, opts ListAccountsOptions) ([]Account, error) {
	var all []Account
	it := c.Accounts(ctx, opts)
	for {
		acc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		all = append(all, *acc)
	}
	if all == nil {
		all = []Account{}
	}
	return all, nil
}

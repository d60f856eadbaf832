package receipt

import (
	"fmt"

	"github.com/dvloznov/papermes/internal/firefly"
	"github.com/dvloznov/papermes/internal/mapper"
	"github.com/dvloznov/papermes/internal/oracle"
	"github.com/dvloznov/papermes/internal/tools"
)

// Call is a decoded oracle tool call: either a CreateTransactionsCall or a RejectedCall.
type Call interface {
	Tool() string
	isCall()
}

// CreateTransactionsCall is an accepted create_transactions call.
type CreateTransactionsCall struct {
	Batch mapper.Batch
}

func (CreateTransactionsCall) Tool() string { return tools.CreateTransactionsName }
func (CreateTransactionsCall) isCall()      {}

// RejectedCall is a call that named an unknown tool or carried malformed arguments.
type RejectedCall struct {
	Name string
	Err  error
}

func (r RejectedCall) Tool() string { return r.Name }
func (RejectedCall) isCall()        {}

// UnknownToolError reports a call to a tool this system does not offer.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// decodeCall turns a raw call into its typed form.
func decodeCall(fc oracle.FunctionCall) Call {
	switch fc.Name {
	case tools.CreateTransactionsName:
		batch, err := mapper.DecodeBatch(fc.Args)
		if err != nil {
			return RejectedCall{Name: fc.Name, Err: err}
		}
		return CreateTransactionsCall{Batch: batch}
	default:
		return RejectedCall{Name: fc.Name, Err: &UnknownToolError{Name: fc.Name}}
	}
}

// forceWithdrawal sets type=withdrawal on every transaction of a
// create_transactions argument bag. Receipts only ever record spending.
func forceWithdrawal(args map[string]any) {
	items, ok := args["transactions"].([]any)
	if !ok {
		return
	}
	for _, item := range items {
		if tx, ok := item.(map[string]any); ok {
			tx["type"] = string(firefly.TransactionKindWithdrawal)
		}
	}
}

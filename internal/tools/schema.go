package tools

import "github.com/dvloznov/papermes/internal/oracle"

// ToolInfo describes a callable tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema *oracle.Schema `json:"input_schema"`
}

// ResourceInfo describes a readable resource.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mime_type"`
}

const createTransactionsDescription = "Create a transaction in Firefly III. " +
	"Each element of transactions becomes one split of a single transaction group."

// CreateTransactionsTool returns the create_transactions declaration handed to the model.
func CreateTransactionsTool() oracle.ToolSpec {
	str := func(desc string) *oracle.Schema {
		return &oracle.Schema{Type: oracle.TypeString, Description: desc}
	}

	split := &oracle.Schema{
		Type: oracle.TypeObject,
		Properties: map[string]*oracle.Schema{
			"type": {
				Type:        oracle.TypeString,
				Description: "Transaction type",
				Enum:        []string{"withdrawal", "deposit", "transfer"},
			},
			"source_account":      str("Source account ID or name"),
			"destination_account": str("Destination account ID or name"),
			"amount":              str("Amount as a positive decimal string, e.g. \"15.99\""),
			"currency_code":       str("ISO 4217 currency code; defaults to the configured currency"),
			"description":         str("Short description of the purchase"),
			"date":                {Type: oracle.TypeString, Description: "Transaction date (YYYY-MM-DD); defaults to today", Format: "date"},
			"category_name":       str("Category name"),
			"budget_name":         str("Budget name"),
			"notes":               str("Free-form notes"),
			"tags": {
				Type:        oracle.TypeArray,
				Description: "Tags",
				Items:       &oracle.Schema{Type: oracle.TypeString},
			},
		},
		Required: []string{"type", "source_account", "destination_account", "amount", "description"},
	}

	return oracle.ToolSpec{
		Name:        CreateTransactionsName,
		Description: createTransactionsDescription,
		Parameters: &oracle.Schema{
			Type: oracle.TypeObject,
			Properties: map[string]*oracle.Schema{
				"transactions": {
					Type:        oracle.TypeArray,
					Description: "List of transaction splits to create",
					Items:       split,
				},
				"group_title": str("Optional title for the transaction group"),
			},
			Required: []string{"transactions"},
		},
	}
}

// Tools lists the tool surface.
func (s *Service) Tools() []ToolInfo {
	spec := CreateTransactionsTool()
	return []ToolInfo{{Name: spec.Name, Description: spec.Description, InputSchema: spec.Parameters}}
}

// Resources lists the resource surface.
func (s *Service) Resources() []ResourceInfo {
	return []ResourceInfo{{
		URI:         AccountsResourceURI,
		Name:        "accounts",
		Description: "Get accounts from Firefly III.",
		MIMEType:    "application/json",
	}}
}

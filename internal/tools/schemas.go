package tools

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// 以下参数结构体只用于推导工具的输入 schema，处理函数仍通过 Args 做宽松解析。
// 不带 omitempty 的字段为必填。

type profileArgs struct {
	Email string `json:"email" jsonschema:"Customer email address"`
}

type balanceArgs struct {
	CustomerID int64  `json:"customer_id,omitempty" jsonschema:"Customer ID"`
	Email      string `json:"email,omitempty" jsonschema:"Customer email address"`
}

type transferArgs struct {
	FromAccount string  `json:"from_account" jsonschema:"Source account number"`
	ToAccount   string  `json:"to_account" jsonschema:"Destination account number"`
	Amount      float64 `json:"amount" jsonschema:"Amount in dollars"`
	Description string  `json:"description,omitempty" jsonschema:"Optional transfer description"`
}

type applicationArgs struct {
	ProductType string         `json:"product_type" jsonschema:"Product name, e.g. Credit Card"`
	Details     map[string]any `json:"details,omitempty" jsonschema:"Optional applicant details such as full_name or income"`
	CustomerID  int64          `json:"customer_id,omitempty" jsonschema:"Customer ID"`
	Email       string         `json:"email,omitempty" jsonschema:"Applicant email address"`
}

type addressArgs struct {
	CustomerID int64  `json:"customer_id,omitempty" jsonschema:"Customer ID"`
	NewAddress string `json:"new_address" jsonschema:"Full new address"`
}

type fraudArgs struct {
	AccountID string  `json:"account_id" jsonschema:"Source account number"`
	Amount    float64 `json:"amount" jsonschema:"Amount in dollars"`
}

type policyArgs struct {
	SearchQuery string `json:"search_query" jsonschema:"Plain text question or topic"`
}

var (
	profileSchema     = mustSchema[profileArgs]()
	balanceSchema     = mustSchema[balanceArgs]()
	transferSchema    = mustSchema[transferArgs]()
	applicationSchema = mustSchema[applicationArgs]()
	addressSchema     = mustSchema[addressArgs]()
	fraudSchema       = mustSchema[fraudArgs]()
	policySchema      = mustSchema[policyArgs]()
)

// mustSchema 由结构体标签推导 schema，类型固定，失败即为编码错误。
func mustSchema[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("tools: derive schema: %v", err))
	}
	return schema
}

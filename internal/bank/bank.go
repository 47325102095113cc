package bank

import (
	"strings"
	"time"
)

// Customer 表示银行客户，注册用户与申请时创建的占位客户共用此结构。
type Customer struct {
	ID                 int64     `json:"id"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	FullName           string    `json:"full_name"`
	Email              string    `json:"email"`
	HashedPassword     string    `json:"-"`
	RegistrationNumber string    `json:"registration_number,omitempty"`
	Phone              string    `json:"phone,omitempty"`
	Address            string    `json:"address,omitempty"`
	IsAuthenticated    bool      `json:"is_authenticated"`
	CreatedAt          time.Time `json:"created_at"`
}

// DisplayName 返回客户展示名称。
func (c Customer) DisplayName() string {
	if c.FullName != "" {
		return c.FullName
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Account 表示客户名下的账户。
type Account struct {
	ID            int64  `json:"id"`
	CustomerID    int64  `json:"customer_id"`
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
	Balance       Cents  `json:"balance"`
}

// ApplicationStatusPending 是新申请的默认状态。
const ApplicationStatusPending = "Pending"

// Application 表示产品申请记录。
type Application struct {
	ID         int64          `json:"id"`
	CustomerID int64          `json:"customer_id"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TransactionType 区分借记与贷记流水。
type TransactionType string

const (
	TransactionDebit  TransactionType = "Debit"
	TransactionCredit TransactionType = "Credit"
)

// Transaction 表示账户流水。借记流水的金额为负数。
type Transaction struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"`
	Amount       Cents           `json:"amount"`
	Type         TransactionType `json:"transaction_type"`
	Description  string          `json:"description"`
	IsFraudulent bool            `json:"is_fraudulent"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PolicyDocument 是一条可被语义检索的银行政策。
type PolicyDocument struct {
	ID        int64             `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
}

// Title 返回政策标题。
func (p PolicyDocument) Title() string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata["title"]
}

// TransferRequest 描述一次转账。OwnerID 非零时要求转出账户属于该客户。
type TransferRequest struct {
	FromAccount string
	ToAccount   string
	Amount      Cents
	Description string
	Flagged     bool
	OwnerID     int64
}

// TransferReceipt 返回转账后的账户快照和两条流水。
type TransferReceipt struct {
	From   Account
	To     Account
	Amount Cents
	Debit  Transaction
	Credit Transaction
}

// ApplicationRequest 描述一次产品申请。
type ApplicationRequest struct {
	CustomerID  int64
	Email       string
	ProductType string
	Details     map[string]any
}

// PlaceholderName 返回申请人未注册时占位客户使用的姓名。
func (r ApplicationRequest) PlaceholderName() string {
	if r.Details != nil {
		if name, ok := r.Details["full_name"].(string); ok && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
	}
	return "Unknown Applicant"
}

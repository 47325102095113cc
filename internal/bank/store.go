package bank

import (
	"context"
	"strings"
)

// CustomerStore 管理客户资料。
type CustomerStore interface {
	CreateCustomer(ctx context.Context, customer *Customer) error
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	UpdateCustomerAddress(ctx context.Context, id int64, address string) error
}

// AccountStore 管理账户与资金划转。
type AccountStore interface {
	OpenAccount(ctx context.Context, account *Account) error
	ListAccounts(ctx context.Context, customerID int64) ([]Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*Account, error)
	// Transfer 在单个事务内完成扣款、入账和两条流水的写入。
	Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error)
}

// ApplicationStore 管理产品申请。
type ApplicationStore interface {
	// SubmitApplication 在同一事务中按需创建占位客户并写入申请。
	SubmitApplication(ctx context.Context, req ApplicationRequest) (*Application, error)
	ListApplications(ctx context.Context, customerID int64) ([]Application, error)
}

// PolicyStore 保存政策文本及其向量。
type PolicyStore interface {
	CountPolicies(ctx context.Context) (int, error)
	// AddPolicies 原子写入一批政策，任何一条失败都不会留下部分记录。
	AddPolicies(ctx context.Context, docs []*PolicyDocument) error
	ListPolicies(ctx context.Context) ([]PolicyDocument, error)
}

// Store 聚合银行助手所需的全部持久化能力。
type Store interface {
	CustomerStore
	AccountStore
	ApplicationStore
	PolicyStore
	Close() error
}

// NormalizeEmail 统一邮箱大小写与空白。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateTransfer 检查与存储实现无关的转账参数。
func ValidateTransfer(req TransferRequest) error {
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(req.FromAccount) == "" || strings.TrimSpace(req.ToAccount) == "" {
		return ErrAccountNotFound
	}
	if strings.TrimSpace(req.FromAccount) == strings.TrimSpace(req.ToAccount) {
		return ErrSameAccount
	}
	return nil
}

// TransferDescription 返回流水描述，模型未提供时使用默认值。
func TransferDescription(desc string) string {
	if strings.TrimSpace(desc) == "" {
		return "Transfer"
	}
	return strings.TrimSpace(desc)
}

// ValidateApplication 检查申请参数并返回归一化后的请求。
func ValidateApplication(req ApplicationRequest) (ApplicationRequest, error) {
	req.Email = NormalizeEmail(req.Email)
	req.ProductType = strings.TrimSpace(req.ProductType)
	if req.CustomerID == 0 && req.Email == "" {
		return req, ErrApplicantRequired
	}
	if req.ProductType == "" {
		return req, ErrInvalidProduct
	}
	return req, nil
}

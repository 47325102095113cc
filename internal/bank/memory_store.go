package bank

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "IVA-Bank/internal/errors"
)

// MemoryStore 以内存方式保存银行数据，用于开发环境与测试。
type MemoryStore struct {
	mu           sync.RWMutex
	nextID       int64
	customers    map[int64]*Customer
	emails       map[string]int64
	accounts     map[int64]*Account
	numbers      map[string]int64
	applications []Application
	transactions []Transaction
	policies     []PolicyDocument
	now          func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[int64]*Customer),
		emails:    make(map[string]int64),
		accounts:  make(map[int64]*Account),
		numbers:   make(map[string]int64),
		now:       time.Now,
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// CreateCustomer 实现 CustomerStore 接口。
func (m *MemoryStore) CreateCustomer(_ context.Context, customer *Customer) error {
	if customer == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "customer 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCustomerLocked(customer)
}

func (m *MemoryStore) createCustomerLocked(customer *Customer) error {
	email := NormalizeEmail(customer.Email)
	if email != "" {
		if _, ok := m.emails[email]; ok {
			return ErrEmailTaken
		}
	}
	if customer.RegistrationNumber != "" {
		for _, existing := range m.customers {
			if existing.RegistrationNumber == customer.RegistrationNumber {
				return xerrors.New(xerrors.CodeConflict, "registration number already registered")
			}
		}
	}
	customer.ID = m.id()
	customer.Email = email
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = m.now().UTC()
	}
	clone := *customer
	m.customers[clone.ID] = &clone
	if email != "" {
		m.emails[email] = clone.ID
	}
	return nil
}

// GetCustomer 实现 CustomerStore 接口。
func (m *MemoryStore) GetCustomer(_ context.Context, id int64) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	clone := *c
	return &clone, nil
}

// FindCustomerByEmail 实现 CustomerStore 接口。
func (m *MemoryStore) FindCustomerByEmail(_ context.Context, email string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[NormalizeEmail(email)]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	clone := *m.customers[id]
	return &clone, nil
}

// UpdateCustomerAddress 实现 CustomerStore 接口。
func (m *MemoryStore) UpdateCustomerAddress(_ context.Context, id int64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return ErrCustomerNotFound
	}
	c.Address = strings.TrimSpace(address)
	return nil
}

// OpenAccount 实现 AccountStore 接口。
func (m *MemoryStore) OpenAccount(_ context.Context, account *Account) error {
	if account == nil || strings.TrimSpace(account.AccountNumber) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账户号不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[account.CustomerID]; !ok {
		return ErrCustomerNotFound
	}
	if _, ok := m.numbers[account.AccountNumber]; ok {
		return xerrors.New(xerrors.CodeConflict, "account number already exists")
	}
	account.ID = m.id()
	clone := *account
	m.accounts[clone.ID] = &clone
	m.numbers[clone.AccountNumber] = clone.ID
	return nil
}

// ListAccounts 实现 AccountStore 接口。
func (m *MemoryStore) ListAccounts(_ context.Context, customerID int64) ([]Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Account, 0)
	for _, acc := range m.accounts {
		if acc.CustomerID == customerID {
			result = append(result, *acc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetAccountByNumber 实现 AccountStore 接口。
func (m *MemoryStore) GetAccountByNumber(_ context.Context, number string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.numbers[strings.TrimSpace(number)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	clone := *m.accounts[id]
	return &clone, nil
}

// Transfer 在持有写锁期间完成全部校验与变更，任何失败都不会留下部分结果。
func (m *MemoryStore) Transfer(_ context.Context, req TransferRequest) (*TransferReceipt, error) {
	if err := ValidateTransfer(req); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fromID, okFrom := m.numbers[strings.TrimSpace(req.FromAccount)]
	toID, okTo := m.numbers[strings.TrimSpace(req.ToAccount)]
	if !okFrom || !okTo {
		return nil, ErrAccountNotFound
	}
	from, to := m.accounts[fromID], m.accounts[toID]
	if req.OwnerID != 0 && from.CustomerID != req.OwnerID {
		return nil, ErrNotAccountOwner
	}
	if from.Balance < req.Amount {
		return nil, ErrInsufficientFunds
	}

	from.Balance -= req.Amount
	to.Balance += req.Amount
	now := m.now().UTC()
	desc := TransferDescription(req.Description)
	debit := Transaction{ID: m.id(), AccountID: from.ID, Amount: -req.Amount, Type: TransactionDebit,
		Description: desc, IsFraudulent: req.Flagged, CreatedAt: now}
	credit := Transaction{ID: m.id(), AccountID: to.ID, Amount: req.Amount, Type: TransactionCredit,
		Description: desc, IsFraudulent: req.Flagged, CreatedAt: now}
	m.transactions = append(m.transactions, debit, credit)

	return &TransferReceipt{From: *from, To: *to, Amount: req.Amount, Debit: debit, Credit: credit}, nil
}

// ListTransactions 按时间倒序返回账户流水。
func (m *MemoryStore) ListTransactions(_ context.Context, accountID int64, limit int) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Transaction, 0)
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].AccountID != accountID {
			continue
		}
		result = append(result, m.transactions[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// SubmitApplication 实现 ApplicationStore 接口。
func (m *MemoryStore) SubmitApplication(_ context.Context, req ApplicationRequest) (*Application, error) {
	req, err := ValidateApplication(req)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	customerID := req.CustomerID
	if customerID != 0 {
		if _, ok := m.customers[customerID]; !ok {
			return nil, ErrCustomerNotFound
		}
	} else if id, ok := m.emails[req.Email]; ok {
		customerID = id
	} else {
		placeholder := &Customer{FullName: req.PlaceholderName(), Email: req.Email}
		if err := m.createCustomerLocked(placeholder); err != nil {
			return nil, err
		}
		customerID = placeholder.ID
	}

	app := Application{
		ID:         m.id(),
		CustomerID: customerID,
		Type:       req.ProductType,
		Status:     ApplicationStatusPending,
		Details:    cloneDetails(req.Details),
		CreatedAt:  m.now().UTC(),
	}
	m.applications = append(m.applications, app)
	result := app
	result.Details = cloneDetails(app.Details)
	return &result, nil
}

// ListApplications 实现 ApplicationStore 接口。
func (m *MemoryStore) ListApplications(_ context.Context, customerID int64) ([]Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Application, 0)
	for _, app := range m.applications {
		if app.CustomerID == customerID {
			clone := app
			clone.Details = cloneDetails(app.Details)
			result = append(result, clone)
		}
	}
	return result, nil
}

// CountPolicies 实现 PolicyStore 接口。
func (m *MemoryStore) CountPolicies(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.policies), nil
}

// AddPolicies 实现 PolicyStore 接口。
func (m *MemoryStore) AddPolicies(_ context.Context, docs []*PolicyDocument) error {
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Content) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "政策内容不能为空")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		doc.ID = m.id()
		m.policies = append(m.policies, clonePolicy(*doc))
	}
	return nil
}

// ListPolicies 实现 PolicyStore 接口。
func (m *MemoryStore) ListPolicies(_ context.Context) ([]PolicyDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]PolicyDocument, 0, len(m.policies))
	for _, p := range m.policies {
		result = append(result, clonePolicy(p))
	}
	return result, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }

func cloneDetails(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func clonePolicy(p PolicyDocument) PolicyDocument {
	clone := p
	if p.Metadata != nil {
		clone.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			clone.Metadata[k] = v
		}
	}
	if p.Embedding != nil {
		clone.Embedding = append([]float32(nil), p.Embedding...)
	}
	return clone
}

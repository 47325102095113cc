package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
)

// BankStore 使用 MySQL 持久化客户、账户、申请、流水与政策向量。
type BankStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ bank.Store = (*BankStore)(nil)

// NewBankStore 建立连接池并执行迁移。
func NewBankStore(ctx context.Context, cfg Config) (*BankStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "打开银行数据库失败")
	}
	if _, err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "执行数据库迁移失败")
	}
	return &BankStore{db: db, now: time.Now}, nil
}

// Close 释放连接池。
func (s *BankStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const insertCustomerSQL = `INSERT INTO customers
    (first_name, last_name, full_name, email, hashed_password, registration_number, phone, address, is_authenticated, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectCustomerColumns = `SELECT id, first_name, last_name, full_name, email, hashed_password, registration_number, phone, address, is_authenticated, created_at
    FROM customers`

// CreateCustomer 实现 bank.CustomerStore。
func (s *BankStore) CreateCustomer(ctx context.Context, customer *bank.Customer) error {
	if customer == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "customer 不能为空")
	}
	return s.insertCustomer(ctx, s.db, customer)
}

func (s *BankStore) insertCustomer(ctx context.Context, q execer, customer *bank.Customer) error {
	customer.Email = bank.NormalizeEmail(customer.Email)
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = s.now().UTC()
	}
	var registration sql.NullString
	if customer.RegistrationNumber != "" {
		registration = sql.NullString{String: customer.RegistrationNumber, Valid: true}
	}
	res, err := q.ExecContext(ctx, insertCustomerSQL,
		customer.FirstName, customer.LastName, customer.FullName, customer.Email,
		customer.HashedPassword, registration, customer.Phone, customer.Address,
		boolToInt(customer.IsAuthenticated), customer.CreatedAt.Unix())
	if err != nil {
		if isDuplicateKey(err) {
			if strings.Contains(err.Error(), "registration") {
				return xerrors.Wrap(xerrors.CodeConflict, err, "registration number already registered")
			}
			return bank.ErrEmailTaken
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入客户失败")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取客户 ID 失败")
	}
	customer.ID = id
	return nil
}

// GetCustomer 实现 bank.CustomerStore。
func (s *BankStore) GetCustomer(ctx context.Context, id int64) (*bank.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, selectCustomerColumns+` WHERE id = ?`, id))
}

// FindCustomerByEmail 实现 bank.CustomerStore。
func (s *BankStore) FindCustomerByEmail(ctx context.Context, email string) (*bank.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, selectCustomerColumns+` WHERE email = ?`, bank.NormalizeEmail(email)))
}

func scanCustomer(row *sql.Row) (*bank.Customer, error) {
	var (
		c            bank.Customer
		registration sql.NullString
		createdAt    int64
	)
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.FullName, &c.Email, &c.HashedPassword,
		&registration, &c.Phone, &c.Address, &c.IsAuthenticated, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bank.ErrCustomerNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询客户失败")
	}
	c.RegistrationNumber = registration.String
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &c, nil
}

// UpdateCustomerAddress 实现 bank.CustomerStore。
func (s *BankStore) UpdateCustomerAddress(ctx context.Context, id int64, address string) error {
	if _, err := s.GetCustomer(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE customers SET address = ? WHERE id = ?`, strings.TrimSpace(address), id); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新地址失败")
	}
	return nil
}

// OpenAccount 实现 bank.AccountStore。
func (s *BankStore) OpenAccount(ctx context.Context, account *bank.Account) error {
	if account == nil || strings.TrimSpace(account.AccountNumber) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账户号不能为空")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO accounts (customer_id, account_number, account_type, balance_cents) VALUES (?, ?, ?, ?)`,
		account.CustomerID, account.AccountNumber, account.AccountType, int64(account.Balance))
	if err != nil {
		if isDuplicateKey(err) {
			return xerrors.Wrap(xerrors.CodeConflict, err, "account number already exists")
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开户失败")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取账户 ID 失败")
	}
	account.ID = id
	return nil
}

// ListAccounts 实现 bank.AccountStore。
func (s *BankStore) ListAccounts(ctx context.Context, customerID int64) ([]bank.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, customer_id, account_number, account_type, balance_cents
    FROM accounts WHERE customer_id = ? ORDER BY id`, customerID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询账户失败")
	}
	defer rows.Close()

	accounts := make([]bank.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历账户失败")
	}
	return accounts, nil
}

// GetAccountByNumber 实现 bank.AccountStore。
func (s *BankStore) GetAccountByNumber(ctx context.Context, number string) (*bank.Account, error) {
	var acc bank.Account
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT id, customer_id, account_number, account_type, balance_cents
    FROM accounts WHERE account_number = ?`, strings.TrimSpace(number)).
		Scan(&acc.ID, &acc.CustomerID, &acc.AccountNumber, &acc.AccountType, &balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, bank.ErrAccountNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询账户失败")
	}
	acc.Balance = bank.Cents(balance)
	return &acc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (bank.Account, error) {
	var acc bank.Account
	var balance int64
	if err := row.Scan(&acc.ID, &acc.CustomerID, &acc.AccountNumber, &acc.AccountType, &balance); err != nil {
		return acc, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析账户失败")
	}
	acc.Balance = bank.Cents(balance)
	return acc, nil
}

const lockAccountsSQL = `SELECT id, customer_id, account_number, account_type, balance_cents
    FROM accounts WHERE account_number IN (?, ?) ORDER BY id FOR UPDATE`

const insertTransactionSQL = `INSERT INTO transactions
    (account_id, amount_cents, transaction_type, description, is_fraudulent, created_at)
    VALUES (?, ?, ?, ?, ?, ?)`

// Transfer 锁定两个账户行后完成扣款、入账与流水写入，任一步失败整体回滚。
func (s *BankStore) Transfer(ctx context.Context, req bank.TransferRequest) (*bank.TransferReceipt, error) {
	if err := bank.ValidateTransfer(req); err != nil {
		return nil, err
	}
	fromNumber, toNumber := strings.TrimSpace(req.FromAccount), strings.TrimSpace(req.ToAccount)

	var receipt *bank.TransferReceipt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, lockAccountsSQL, fromNumber, toNumber)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定账户失败")
		}
		locked := make(map[string]bank.Account, 2)
		for rows.Next() {
			acc, err := scanAccount(rows)
			if err != nil {
				rows.Close()
				return err
			}
			locked[acc.AccountNumber] = acc
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历账户失败")
		}

		from, okFrom := locked[fromNumber]
		to, okTo := locked[toNumber]
		if !okFrom || !okTo {
			return bank.ErrAccountNotFound
		}
		if req.OwnerID != 0 && from.CustomerID != req.OwnerID {
			return bank.ErrNotAccountOwner
		}
		if from.Balance < req.Amount {
			return bank.ErrInsufficientFunds
		}

		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance_cents = balance_cents - ? WHERE id = ?`, int64(req.Amount), from.ID); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "扣款失败")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?`, int64(req.Amount), to.ID); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "入账失败")
		}
		from.Balance -= req.Amount
		to.Balance += req.Amount

		now := s.now().UTC()
		desc := bank.TransferDescription(req.Description)
		debit := bank.Transaction{AccountID: from.ID, Amount: -req.Amount, Type: bank.TransactionDebit,
			Description: desc, IsFraudulent: req.Flagged, CreatedAt: now}
		credit := bank.Transaction{AccountID: to.ID, Amount: req.Amount, Type: bank.TransactionCredit,
			Description: desc, IsFraudulent: req.Flagged, CreatedAt: now}
		for _, txn := range []*bank.Transaction{&debit, &credit} {
			res, err := tx.ExecContext(ctx, insertTransactionSQL, txn.AccountID, int64(txn.Amount), string(txn.Type),
				txn.Description, boolToInt(txn.IsFraudulent), now.Unix())
			if err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入流水失败")
			}
			if txn.ID, err = res.LastInsertId(); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取流水 ID 失败")
			}
		}

		receipt = &bank.TransferReceipt{From: from, To: to, Amount: req.Amount, Debit: debit, Credit: credit}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListTransactions 实现 bank.AccountStore。
func (s *BankStore) ListTransactions(ctx context.Context, accountID int64, limit int) ([]bank.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, account_id, amount_cents, transaction_type, description, is_fraudulent, created_at
    FROM transactions WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流水失败")
	}
	defer rows.Close()

	result := make([]bank.Transaction, 0)
	for rows.Next() {
		var (
			txn       bank.Transaction
			amount    int64
			typ       string
			createdAt int64
		)
		if err := rows.Scan(&txn.ID, &txn.AccountID, &amount, &typ, &txn.Description, &txn.IsFraudulent, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析流水失败")
		}
		txn.Amount = bank.Cents(amount)
		txn.Type = bank.TransactionType(typ)
		txn.CreatedAt = time.Unix(createdAt, 0).UTC()
		result = append(result, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历流水失败")
	}
	return result, nil
}

const insertApplicationSQL = `INSERT INTO applications (customer_id, type, status, details, created_at) VALUES (?, ?, ?, ?, ?)`

// SubmitApplication 在同一事务中解析申请人并写入申请。
func (s *BankStore) SubmitApplication(ctx context.Context, req bank.ApplicationRequest) (*bank.Application, error) {
	req, err := bank.ValidateApplication(req)
	if err != nil {
		return nil, err
	}
	details, err := encodeDetails(req.Details)
	if err != nil {
		return nil, err
	}

	var app *bank.Application
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		customerID := req.CustomerID
		if customerID != 0 {
			var exists int64
			if err := tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE id = ?`, customerID).Scan(&exists); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return bank.ErrCustomerNotFound
				}
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询客户失败")
			}
		} else {
			err := tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE email = ?`, req.Email).Scan(&customerID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				placeholder := &bank.Customer{FullName: req.PlaceholderName(), Email: req.Email}
				if err := s.insertCustomer(ctx, tx, placeholder); err != nil {
					return err
				}
				customerID = placeholder.ID
			case err != nil:
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询客户失败")
			}
		}

		now := s.now().UTC()
		res, err := tx.ExecContext(ctx, insertApplicationSQL, customerID, req.ProductType, bank.ApplicationStatusPending, details, now.Unix())
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入申请失败")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取申请 ID 失败")
		}
		app = &bank.Application{ID: id, CustomerID: customerID, Type: req.ProductType,
			Status: bank.ApplicationStatusPending, Details: req.Details, CreatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ListApplications 实现 bank.ApplicationStore。
func (s *BankStore) ListApplications(ctx context.Context, customerID int64) ([]bank.Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, customer_id, type, status, details, created_at
    FROM applications WHERE customer_id = ? ORDER BY id`, customerID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询申请失败")
	}
	defer rows.Close()

	result := make([]bank.Application, 0)
	for rows.Next() {
		var (
			app       bank.Application
			details   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&app.ID, &app.CustomerID, &app.Type, &app.Status, &details, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析申请失败")
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &app.Details); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析申请详情失败")
			}
		}
		app.CreatedAt = time.Unix(createdAt, 0).UTC()
		result = append(result, app)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历申请失败")
	}
	return result, nil
}

// CountPolicies 实现 bank.PolicyStore。
func (s *BankStore) CountPolicies(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM policy_vectors`).Scan(&count); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计政策失败")
	}
	return count, nil
}

// AddPolicies 实现 bank.PolicyStore，全部记录在同一事务内写入。
func (s *BankStore) AddPolicies(ctx context.Context, docs []*bank.PolicyDocument) error {
	type row struct {
		doc                 *bank.PolicyDocument
		metadata, embedding string
	}
	rows := make([]row, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Content) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "政策内容不能为空")
		}
		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化政策元数据失败")
		}
		embedding, err := json.Marshal(doc.Embedding)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化政策向量失败")
		}
		rows = append(rows, row{doc: doc, metadata: string(metadata), embedding: string(embedding)})
	}
	ids := make([]int64, len(rows))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, r := range rows {
			res, err := tx.ExecContext(ctx, `INSERT INTO policy_vectors (content, metadata_json, embedding) VALUES (?, ?, ?)`,
				r.doc.Content, r.metadata, r.embedding)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入政策失败")
			}
			if ids[i], err = res.LastInsertId(); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取政策 ID 失败")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i, r := range rows {
		r.doc.ID = ids[i]
	}
	return nil
}

// ListPolicies 实现 bank.PolicyStore。
func (s *BankStore) ListPolicies(ctx context.Context) ([]bank.PolicyDocument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata_json, embedding FROM policy_vectors ORDER BY id`)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询政策失败")
	}
	defer rows.Close()

	result := make([]bank.PolicyDocument, 0)
	for rows.Next() {
		var (
			doc                 bank.PolicyDocument
			metadata, embedding sql.NullString
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &embedding); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析政策失败")
		}
		if err := decodeJSONColumn(metadata, &doc.Metadata); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(embedding, &doc.Embedding); err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历政策失败")
	}
	return result, nil
}

func (s *BankStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("回滚事务失败: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return nil
}

func encodeDetails(details map[string]any) (sql.NullString, error) {
	if len(details) == 0 {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return sql.NullString{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化申请详情失败")
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func decodeJSONColumn(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 JSON 列失败")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
)

// BankStore 基于 gorm 与 SQLite 实现 bank.Store。
type BankStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ bank.Store = (*BankStore)(nil)

// Open 打开 SQLite 数据库并自动建表。dsn 为空时使用内存数据库。
func Open(ctx context.Context, dsn string) (*BankStore, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "打开 SQLite 失败")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "获取 SQLite 连接失败")
	}
	// SQLite 只允许单写者，内存库在多连接下也不会共享数据。
	sqlDB.SetMaxOpenConns(1)

	if err := db.WithContext(ctx).AutoMigrate(
		&customerModel{}, &accountModel{}, &applicationModel{}, &transactionModel{}, &policyModel{},
	); err != nil {
		sqlDB.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "SQLite 建表失败")
	}
	return &BankStore{db: db, now: time.Now}, nil
}

// Close 关闭底层连接。
func (s *BankStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func storageErr(err error, msg string) error {
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, msg)
}

// CreateCustomer 实现 bank.CustomerStore。
func (s *BankStore) CreateCustomer(ctx context.Context, customer *bank.Customer) error {
	if customer == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "customer 不能为空")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.createCustomer(tx, customer)
	})
}

func (s *BankStore) createCustomer(tx *gorm.DB, customer *bank.Customer) error {
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = s.now().UTC()
	}
	model := customerFromDomain(customer)

	var count int64
	if err := tx.Model(&customerModel{}).Where("email = ?", model.Email).Count(&count).Error; err != nil {
		return storageErr(err, "查询邮箱失败")
	}
	if count > 0 {
		return bank.ErrEmailTaken
	}
	if model.RegistrationNumber != nil {
		if err := tx.Model(&customerModel{}).Where("registration_number = ?", *model.RegistrationNumber).Count(&count).Error; err != nil {
			return storageErr(err, "查询登记号失败")
		}
		if count > 0 {
			return xerrors.New(xerrors.CodeConflict, "registration number already registered")
		}
	}
	if err := tx.Create(&model).Error; err != nil {
		return storageErr(err, "写入客户失败")
	}
	customer.ID = model.ID
	customer.Email = model.Email
	return nil
}

// GetCustomer 实现 bank.CustomerStore。
func (s *BankStore) GetCustomer(ctx context.Context, id int64) (*bank.Customer, error) {
	return s.firstCustomer(s.db.WithContext(ctx).Where("id = ?", id))
}

// FindCustomerByEmail 实现 bank.CustomerStore。
func (s *BankStore) FindCustomerByEmail(ctx context.Context, email string) (*bank.Customer, error) {
	return s.firstCustomer(s.db.WithContext(ctx).Where("email = ?", bank.NormalizeEmail(email)))
}

func (s *BankStore) firstCustomer(query *gorm.DB) (*bank.Customer, error) {
	var model customerModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bank.ErrCustomerNotFound
		}
		return nil, storageErr(err, "查询客户失败")
	}
	return model.toDomain(), nil
}

// UpdateCustomerAddress 实现 bank.CustomerStore。
func (s *BankStore) UpdateCustomerAddress(ctx context.Context, id int64, address string) error {
	res := s.db.WithContext(ctx).Model(&customerModel{}).Where("id = ?", id).Update("address", strings.TrimSpace(address))
	if res.Error != nil {
		return storageErr(res.Error, "更新地址失败")
	}
	if res.RowsAffected == 0 {
		return bank.ErrCustomerNotFound
	}
	return nil
}

// OpenAccount 实现 bank.AccountStore。
func (s *BankStore) OpenAccount(ctx context.Context, account *bank.Account) error {
	if account == nil || strings.TrimSpace(account.AccountNumber) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账户号不能为空")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&customerModel{}).Where("id = ?", account.CustomerID).Count(&count).Error; err != nil {
			return storageErr(err, "查询客户失败")
		}
		if count == 0 {
			return bank.ErrCustomerNotFound
		}
		if err := tx.Model(&accountModel{}).Where("account_number = ?", account.AccountNumber).Count(&count).Error; err != nil {
			return storageErr(err, "查询账户失败")
		}
		if count > 0 {
			return xerrors.New(xerrors.CodeConflict, "account number already exists")
		}
		model := accountModel{
			CustomerID:    account.CustomerID,
			AccountNumber: account.AccountNumber,
			AccountType:   account.AccountType,
			BalanceCents:  int64(account.Balance),
		}
		if err := tx.Create(&model).Error; err != nil {
			return storageErr(err, "开户失败")
		}
		account.ID = model.ID
		return nil
	})
}

// ListAccounts 实现 bank.AccountStore。
func (s *BankStore) ListAccounts(ctx context.Context, customerID int64) ([]bank.Account, error) {
	var models []accountModel
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("id").Find(&models).Error; err != nil {
		return nil, storageErr(err, "查询账户失败")
	}
	accounts := make([]bank.Account, 0, len(models))
	for _, m := range models {
		accounts = append(accounts, m.toDomain())
	}
	return accounts, nil
}

// GetAccountByNumber 实现 bank.AccountStore。
func (s *BankStore) GetAccountByNumber(ctx context.Context, number string) (*bank.Account, error) {
	var model accountModel
	if err := s.db.WithContext(ctx).Where("account_number = ?", strings.TrimSpace(number)).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bank.ErrAccountNotFound
		}
		return nil, storageErr(err, "查询账户失败")
	}
	acc := model.toDomain()
	return &acc, nil
}

// Transfer 使用带余额条件的扣款语句，保证并发下不会透支。
func (s *BankStore) Transfer(ctx context.Context, req bank.TransferRequest) (*bank.TransferReceipt, error) {
	if err := bank.ValidateTransfer(req); err != nil {
		return nil, err
	}
	fromNumber, toNumber := strings.TrimSpace(req.FromAccount), strings.TrimSpace(req.ToAccount)
	amount := int64(req.Amount)

	var receipt *bank.TransferReceipt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []accountModel
		if err := tx.Where("account_number IN ?", []string{fromNumber, toNumber}).Find(&models).Error; err != nil {
			return storageErr(err, "查询账户失败")
		}
		var from, to *accountModel
		for i := range models {
			switch models[i].AccountNumber {
			case fromNumber:
				from = &models[i]
			case toNumber:
				to = &models[i]
			}
		}
		if from == nil || to == nil {
			return bank.ErrAccountNotFound
		}
		if req.OwnerID != 0 && from.CustomerID != req.OwnerID {
			return bank.ErrNotAccountOwner
		}

		debited := tx.Model(&accountModel{}).
			Where("id = ? AND balance_cents >= ?", from.ID, amount).
			Update("balance_cents", gorm.Expr("balance_cents - ?", amount))
		if debited.Error != nil {
			return storageErr(debited.Error, "扣款失败")
		}
		if debited.RowsAffected != 1 {
			return bank.ErrInsufficientFunds
		}
		if err := tx.Model(&accountModel{}).Where("id = ?", to.ID).
			Update("balance_cents", gorm.Expr("balance_cents + ?", amount)).Error; err != nil {
			return storageErr(err, "入账失败")
		}
		from.BalanceCents -= amount
		to.BalanceCents += amount

		now := s.now().UTC()
		desc := bank.TransferDescription(req.Description)
		legs := []transactionModel{
			{AccountID: from.ID, AmountCents: -amount, TransactionType: string(bank.TransactionDebit), Description: desc, IsFraudulent: req.Flagged, CreatedAt: now},
			{AccountID: to.ID, AmountCents: amount, TransactionType: string(bank.TransactionCredit), Description: desc, IsFraudulent: req.Flagged, CreatedAt: now},
		}
		if err := tx.Create(&legs).Error; err != nil {
			return storageErr(err, "写入流水失败")
		}

		receipt = &bank.TransferReceipt{
			From:   from.toDomain(),
			To:     to.toDomain(),
			Amount: req.Amount,
			Debit:  legs[0].toDomain(),
			Credit: legs[1].toDomain(),
		}
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
	var models []transactionModel
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("created_at DESC").Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, storageErr(err, "查询流水失败")
	}
	result := make([]bank.Transaction, 0, len(models))
	for _, m := range models {
		result = append(result, m.toDomain())
	}
	return result, nil
}

// SubmitApplication 实现 bank.ApplicationStore。
func (s *BankStore) SubmitApplication(ctx context.Context, req bank.ApplicationRequest) (*bank.Application, error) {
	req, err := bank.ValidateApplication(req)
	if err != nil {
		return nil, err
	}
	var details string
	if len(req.Details) > 0 {
		encoded, err := json.Marshal(req.Details)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化申请详情失败")
		}
		details = string(encoded)
	}

	var app *bank.Application
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customerID := req.CustomerID
		if customerID != 0 {
			var count int64
			if err := tx.Model(&customerModel{}).Where("id = ?", customerID).Count(&count).Error; err != nil {
				return storageErr(err, "查询客户失败")
			}
			if count == 0 {
				return bank.ErrCustomerNotFound
			}
		} else {
			var existing customerModel
			err := tx.Where("email = ?", req.Email).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				placeholder := &bank.Customer{FullName: req.PlaceholderName(), Email: req.Email}
				if err := s.createCustomer(tx, placeholder); err != nil {
					return err
				}
				customerID = placeholder.ID
			case err != nil:
				return storageErr(err, "查询客户失败")
			default:
				customerID = existing.ID
			}
		}

		model := applicationModel{
			CustomerID: customerID,
			Type:       req.ProductType,
			Status:     bank.ApplicationStatusPending,
			Details:    details,
			CreatedAt:  s.now().UTC(),
		}
		if err := tx.Create(&model).Error; err != nil {
			return storageErr(err, "写入申请失败")
		}
		app = &bank.Application{ID: model.ID, CustomerID: customerID, Type: model.Type,
			Status: model.Status, Details: req.Details, CreatedAt: model.CreatedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ListApplications 实现 bank.ApplicationStore。
func (s *BankStore) ListApplications(ctx context.Context, customerID int64) ([]bank.Application, error) {
	var models []applicationModel
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("id").Find(&models).Error; err != nil {
		return nil, storageErr(err, "查询申请失败")
	}
	result := make([]bank.Application, 0, len(models))
	for _, m := range models {
		app, err := m.toDomain()
		if err != nil {
			return nil, storageErr(err, "解析申请详情失败")
		}
		result = append(result, app)
	}
	return result, nil
}

// CountPolicies 实现 bank.PolicyStore。
func (s *BankStore) CountPolicies(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&policyModel{}).Count(&count).Error; err != nil {
		return 0, storageErr(err, "统计政策失败")
	}
	return int(count), nil
}

// AddPolicies 实现 bank.PolicyStore，全部记录在同一事务内写入。
func (s *BankStore) AddPolicies(ctx context.Context, docs []*bank.PolicyDocument) error {
	models := make([]policyModel, 0, len(docs))
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
		models = append(models, policyModel{Content: doc.Content, MetadataJSON: string(metadata), Embedding: string(embedding)})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range models {
			if err := tx.Create(&models[i]).Error; err != nil {
				return storageErr(err, "写入政策失败")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i, doc := range docs {
		doc.ID = models[i].ID
	}
	return nil
}

// ListPolicies 实现 bank.PolicyStore。
func (s *BankStore) ListPolicies(ctx context.Context) ([]bank.PolicyDocument, error) {
	var models []policyModel
	if err := s.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, storageErr(err, "查询政策失败")
	}
	result := make([]bank.PolicyDocument, 0, len(models))
	for _, m := range models {
		doc, err := m.toDomain()
		if err != nil {
			return nil, storageErr(err, "解析政策失败")
		}
		result = append(result, doc)
	}
	return result, nil
}

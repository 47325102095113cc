package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/events"
	"IVA-Bank/internal/fraud"
	"IVA-Bank/internal/policy"
	"IVA-Bank/pkg/logger"
)

// 工具名称。
const (
	GetCustomerProfile       = "get_customer_profile"
	GetAccountBalance        = "get_account_balance"
	TransferFunds            = "transfer_funds"
	ApplyForProduct          = "apply_for_product"
	UpdateCustomerAddress    = "update_customer_address"
	ValidateTransactionFraud = "validate_transaction_fraud"
	QueryPolicyRAG           = "query_policy_rag"
)

// 返回给模型的固定文案。
const (
	msgCustomerNotFound   = "Customer not found"
	msgNoIdentifier       = "No ID or email provided"
	msgEmailNotFound      = "Customer email not found"
	msgAccessDenied       = "Access denied: you can only act on your own profile"
	msgAddressUpdated     = "Address updated successfully."
	msgEmptyPolicyQuery   = "Please provide a specific query about bank policies."
	msgNoPolicyFound      = "No specific policy found matching that query."
	policyResultsHeader   = "Policy Results:\n"
	policyResultSeparator = "\n---\n"
)

var errFraudCheckRequired = xerrors.New(xerrors.CodeFailedPrecondition,
	"transfers above the fraud threshold require validate_transaction_fraud for the same amount first")

// Banking 实现全部银行工具。
type Banking struct {
	store     bank.Store
	policies  *policy.Service
	checker   *fraud.Checker
	publisher events.Publisher
	logger    *slog.Logger
}

// NewBanking 创建银行工具集。publisher 为 nil 时事件被丢弃。
func NewBanking(store bank.Store, policies *policy.Service, checker *fraud.Checker, publisher events.Publisher) *Banking {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if checker == nil {
		checker = fraud.NewChecker(0)
	}
	return &Banking{
		store:     store,
		policies:  policies,
		checker:   checker,
		publisher: publisher,
		logger:    logger.Named("tools"),
	}
}

// Tools 返回全部工具定义。
func (b *Banking) Tools() []Tool {
	return []Tool{
		{
			Name:        GetCustomerProfile,
			Description: "Look up an existing customer by email. Returns id, name, address and whether the customer is authenticated.",
			Schema:      profileSchema,
			Handler:     b.getCustomerProfile,
		},
		{
			Name:        GetAccountBalance,
			Description: "List the customer's accounts with their balances. Email takes precedence over customer_id; both may be omitted for the signed-in customer.",
			Schema:      balanceSchema,
			Handler:     b.getAccountBalance,
		},
		{
			Name:        TransferFunds,
			Description: "Transfer money between two accounts by account number. Amounts above the fraud threshold must be checked with validate_transaction_fraud first.",
			Schema:      transferSchema,
			Handler:     b.transferFunds,
		},
		{
			Name:        ApplyForProduct,
			Description: "Submit an application for a bank product such as a credit card, loan or savings account. Requires customer_id or email.",
			Schema:      applicationSchema,
			Handler:     b.applyForProduct,
		},
		{
			Name:        UpdateCustomerAddress,
			Description: "Update the mailing address on the customer's profile.",
			Schema:      addressSchema,
			Handler:     b.updateCustomerAddress,
		},
		{
			Name:        ValidateTransactionFraud,
			Description: "Screen a transaction amount for fraud before transferring it.",
			Schema:      fraudSchema,
			Handler:     b.validateTransactionFraud,
		},
		{
			Name:        QueryPolicyRAG,
			Description: "Search the bank's policy documentation (ACH, cheque clearing, fraud prevention) for answers about how things work or bank rules.",
			Schema:      policySchema,
			Handler:     b.queryPolicy,
		},
	}
}

// Register 将全部工具注册到 registry。
func (b *Banking) Register(registry *Registry) error {
	for _, tool := range b.Tools() {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

type profileResult struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Address         string `json:"address"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

type errorResult struct {
	Error string `json:"error"`
}

type balanceResult struct {
	AccountNumber string  `json:"account_number"`
	Type          string  `json:"type"`
	Balance       float64 `json:"balance"`
}

func (b *Banking) getCustomerProfile(ctx context.Context, args Args) (any, error) {
	email := bank.NormalizeEmail(args.String("email"))
	if email == "" {
		return errorResult{Error: msgCustomerNotFound}, nil
	}
	customer, err := b.store.FindCustomerByEmail(ctx, email)
	if errors.Is(err, bank.ErrCustomerNotFound) {
		return errorResult{Error: msgCustomerNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return profileResult{
		ID:              customer.ID,
		Name:            customer.DisplayName(),
		Address:         customer.Address,
		IsAuthenticated: customer.IsAuthenticated,
	}, nil
}

func (b *Banking) getAccountBalance(ctx context.Context, args Args) (any, error) {
	session := SessionFrom(ctx)
	var customerID int64
	switch email := bank.NormalizeEmail(args.String("email")); {
	case email != "":
		customer, err := b.store.FindCustomerByEmail(ctx, email)
		if errors.Is(err, bank.ErrCustomerNotFound) {
			return []errorResult{{Error: msgEmailNotFound}}, nil
		}
		if err != nil {
			return nil, err
		}
		customerID = customer.ID
	default:
		id, ok, err := args.Int("customer_id")
		if err != nil {
			return nil, err
		}
		if ok && id != 0 {
			customerID = id
		} else if session != nil && session.CustomerID != 0 {
			customerID = session.CustomerID
		} else {
			return []errorResult{{Error: msgNoIdentifier}}, nil
		}
	}
	if !owns(session, customerID) {
		return []errorResult{{Error: msgAccessDenied}}, nil
	}

	accounts, err := b.store.ListAccounts(ctx, customerID)
	if err != nil {
		return nil, err
	}
	out := make([]balanceResult, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, balanceResult{AccountNumber: acc.AccountNumber, Type: acc.AccountType, Balance: acc.Balance.Dollars()})
	}
	return out, nil
}

// owns 判断会话是否可以操作指定客户。访客或无会话的调用（如 MCP）不做限制。
func owns(session *Session, customerID int64) bool {
	if session == nil || session.CustomerID == 0 {
		return true
	}
	return session.CustomerID == customerID
}

func (b *Banking) transferFunds(ctx context.Context, args Args) (any, error) {
	amount, err := args.Amount("amount")
	if err != nil {
		return nil, err
	}
	req := bank.TransferRequest{
		FromAccount: args.String("from_account"),
		ToAccount:   args.String("to_account"),
		Amount:      amount,
		Description: bank.TransferDescription(args.String("description")),
	}
	if err := bank.ValidateTransfer(req); err != nil {
		return nil, err
	}

	session := SessionFrom(ctx)
	if b.checker.Requires(amount) {
		verdict, checked := session.FraudCheck(amount)
		if !checked {
			return nil, errFraudCheckRequired
		}
		req.Flagged = verdict.Flagged()
	}
	if session != nil {
		req.OwnerID = session.CustomerID
	}

	receipt, err := b.store.Transfer(ctx, req)
	if err != nil {
		return nil, err
	}

	email, name := b.contactFor(ctx, session, receipt.From.CustomerID)
	payload := map[string]string{
		"amount":       receipt.Amount.String(),
		"from_account": receipt.From.AccountNumber,
		"to_account":   receipt.To.AccountNumber,
		"description":  req.Description,
		"flagged":      strconv.FormatBool(req.Flagged),
	}
	logger.Audit().Info("transfer_completed",
		slog.String("from_account", receipt.From.AccountNumber),
		slog.String("to_account", receipt.To.AccountNumber),
		slog.Int64("amount_cents", int64(receipt.Amount)),
		slog.Bool("flagged", req.Flagged),
	)
	b.publish(ctx, events.New(events.TypeTransferCompleted, email, name, payload))
	if req.Flagged {
		b.publish(ctx, events.New(events.TypeFraudFlagged, email, name, map[string]string{
			"amount":       receipt.Amount.String(),
			"from_account": receipt.From.AccountNumber,
			"stage":        "executed",
		}))
	}
	return fmt.Sprintf("Successfully transferred %s from %s to %s.", receipt.Amount, receipt.From.AccountNumber, receipt.To.AccountNumber), nil
}

func (b *Banking) applyForProduct(ctx context.Context, args Args) (any, error) {
	req := bank.ApplicationRequest{
		Email:       args.String("email"),
		ProductType: args.String("product_type"),
		Details:     args.Map("details"),
	}
	id, _, err := args.Int("customer_id")
	if err != nil {
		return nil, err
	}
	req.CustomerID = id
	session := SessionFrom(ctx)
	if req.CustomerID == 0 && req.Email == "" && session != nil && session.CustomerID != 0 {
		req.CustomerID = session.CustomerID
	}
	req, err = bank.ValidateApplication(req)
	if err != nil {
		return nil, err
	}

	app, err := b.store.SubmitApplication(ctx, req)
	if err != nil {
		return nil, err
	}

	email, name := b.contactFor(ctx, nil, app.CustomerID)
	logger.Audit().Info("application_submitted",
		slog.Int64("application_id", app.ID),
		slog.Int64("customer_id", app.CustomerID),
		slog.String("product_type", app.Type),
	)
	b.publish(ctx, events.New(events.TypeApplicationSubmitted, email, name, map[string]string{
		"application_id": strconv.FormatInt(app.ID, 10),
		"product_type":   app.Type,
		"status":         app.Status,
	}))
	return fmt.Sprintf("Application for %s submitted successfully. Status: %s. Reference ID: %d", app.Type, app.Status, app.ID), nil
}

func (b *Banking) updateCustomerAddress(ctx context.Context, args Args) (any, error) {
	session := SessionFrom(ctx)
	id, ok, err := args.Int("customer_id")
	if err != nil {
		return nil, err
	}
	if !ok {
		if session == nil || session.CustomerID == 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "customer_id is required")
		}
		id = session.CustomerID
	}
	address := args.String("new_address")
	if address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "new_address is required")
	}
	if !owns(session, id) {
		return nil, xerrors.New(xerrors.CodePermissionDenied, msgAccessDenied)
	}
	if err := b.store.UpdateCustomerAddress(ctx, id, address); err != nil {
		return nil, err
	}
	email, name := b.contactFor(ctx, nil, id)
	b.publish(ctx, events.New(events.TypeAddressUpdated, email, name, nil))
	return msgAddressUpdated, nil
}

func (b *Banking) validateTransactionFraud(ctx context.Context, args Args) (any, error) {
	amount, err := args.Amount("amount")
	if err != nil {
		return nil, err
	}
	account := args.String("account_id")
	verdict := b.checker.Check(account, amount)
	session := SessionFrom(ctx)
	session.RecordFraudCheck(amount, verdict)
	if verdict.Flagged() {
		var customerID int64
		if session != nil {
			customerID = session.CustomerID
		}
		email, name := b.contactFor(ctx, session, customerID)
		b.publish(ctx, events.New(events.TypeFraudFlagged, email, name, map[string]string{
			"amount":       amount.String(),
			"from_account": account,
			"stage":        "screening",
		}))
	}
	return verdict, nil
}

func (b *Banking) queryPolicy(ctx context.Context, args Args) (any, error) {
	query := args.String("search_query")
	if query == "" {
		return msgEmptyPolicyQuery, nil
	}
	if b.policies == nil {
		return msgNoPolicyFound, nil
	}
	docs, err := b.policies.Search(ctx, query, 0)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return msgNoPolicyFound, nil
	}
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}
	return policyResultsHeader + strings.Join(parts, policyResultSeparator), nil
}

// contactFor 返回通知收件人。优先使用会话信息，否则按客户 ID 查询。
func (b *Banking) contactFor(ctx context.Context, session *Session, customerID int64) (string, string) {
	if session != nil && session.CustomerID != 0 && session.CustomerID == customerID && session.Email != "" {
		return session.Email, session.Name
	}
	if customerID == 0 {
		return "", ""
	}
	customer, err := b.store.GetCustomer(ctx, customerID)
	if err != nil {
		return "", ""
	}
	return customer.Email, customer.DisplayName()
}

func (b *Banking) publish(ctx context.Context, event events.Event) {
	if err := b.publisher.Publish(ctx, event); err != nil {
		b.logger.Warn("发布事件失败", slog.String("type", string(event.Type)), slog.Any("error", err))
	}
}

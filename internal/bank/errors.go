package bank

import xerrors "IVA-Bank/internal/errors"

// 业务错误码。errors.Is 按错误码比较，因此客户与账户缺失需要各自的码。
const (
	CodeCustomerNotFound  xerrors.Code = "CUSTOMER_NOT_FOUND"
	CodeAccountNotFound   xerrors.Code = "ACCOUNT_NOT_FOUND"
	CodeInsufficientFunds xerrors.Code = "INSUFFICIENT_FUNDS"
	CodeEmailTaken        xerrors.Code = "EMAIL_TAKEN"
)

func init() {
	xerrors.Register(CodeCustomerNotFound, xerrors.Attributes{
		Message:  "customer not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeAccountNotFound, xerrors.Attributes{
		Message:  "account not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInsufficientFunds, xerrors.Attributes{
		Message:  "insufficient funds",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeEmailTaken, xerrors.Attributes{
		Message:  "email already registered",
		Severity: xerrors.SeverityInfo,
	})
}

var (
	ErrCustomerNotFound  = xerrors.New(CodeCustomerNotFound, "Customer not found")
	ErrAccountNotFound   = xerrors.New(CodeAccountNotFound, "One or both accounts not found")
	ErrInsufficientFunds = xerrors.New(CodeInsufficientFunds, "Insufficient funds")
	ErrEmailTaken        = xerrors.New(CodeEmailTaken, "Email already registered")
	ErrInvalidAmount     = xerrors.New(xerrors.CodeInvalidArgument, "Amount must be positive")
	ErrSameAccount       = xerrors.New(xerrors.CodeInvalidArgument, "Source and destination accounts must differ")
	ErrNotAccountOwner   = xerrors.New(xerrors.CodePermissionDenied, "Source account does not belong to the customer")
	ErrApplicantRequired = xerrors.New(xerrors.CodeInvalidArgument, "Customer ID or email is required")
	ErrInvalidProduct    = xerrors.New(xerrors.CodeInvalidArgument, "Product type is required")
)

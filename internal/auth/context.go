package auth

import (
	"context"

	"IVA-Bank/internal/bank"
)

// customerKey 是上下文中存储当前客户的键类型。
type customerKey struct{}

// WithCustomer 将经过身份验证的客户存储到上下文中。
func WithCustomer(ctx context.Context, customer *bank.Customer) context.Context {
	if customer == nil {
		return ctx
	}
	return context.WithValue(ctx, customerKey{}, customer)
}

// CustomerFromContext 从上下文中提取经过身份验证的客户。
func CustomerFromContext(ctx context.Context) *bank.Customer {
	if ctx == nil {
		return nil
	}
	if customer, ok := ctx.Value(customerKey{}).(*bank.Customer); ok {
		return customer
	}
	return nil
}

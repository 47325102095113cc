package agent

import (
	"fmt"
	"strings"

	"IVA-Bank/internal/bank"
	"IVA-Bank/internal/tools"
)

// Profile 描述一个专家的提示词与可用工具。
type Profile struct {
	Route  Route
	Prompt string
	Tools  []string
}

// Allows 判断工具是否在专家的工具集内。
func (p Profile) Allows(name string) bool {
	for _, t := range p.Tools {
		if t == name {
			return true
		}
	}
	return false
}

const plainArgumentsRule = "IMPORTANT: Provide tool arguments as plain strings or numbers, never as dictionaries with type info."

// DefaultProfiles 返回三个专家的默认配置。threshold 为需要先做欺诈筛查的转账金额。
func DefaultProfiles(threshold bank.Cents) map[Route]Profile {
	return map[Route]Profile{
		RouteOnboarding: {
			Route: RouteOnboarding,
			Tools: []string{tools.GetCustomerProfile, tools.ApplyForProduct},
			Prompt: strings.Join([]string{
				"You are an Onboarding Specialist. Help NEW customers with:",
				"1. Account Opening",
				"2. Loan Applications",
				"3. Credit Card Applications",
				"Always check if the customer already exists using 'get_customer_profile' if they provide an email.",
				"Then use 'apply_for_product' to submit their application.",
				plainArgumentsRule,
			}, "\n"),
		},
		RouteBanking: {
			Route: RouteBanking,
			Tools: []string{tools.GetAccountBalance, tools.TransferFunds, tools.UpdateCustomerAddress, tools.ValidateTransactionFraud},
			Prompt: strings.Join([]string{
				"You are a Banking Assistant for AUTHENTICATED users.",
				"You can check balances, transfer funds, and update addresses.",
				"Use the user's email from the context to pull all associated accounts if needed.",
				fmt.Sprintf("CRITICAL: For transfers > %s, ALWAYS call 'validate_transaction_fraud' with the same amount before 'transfer_funds'.", threshold),
				plainArgumentsRule,
			}, "\n"),
		},
		RouteAdvisory: {
			Route: RouteAdvisory,
			Tools: []string{tools.QueryPolicyRAG},
			Prompt: strings.Join([]string{
				"You are a Financial Advisor and Policy Expert.",
				"Use 'query_policy_rag' to answer questions about bank policies like ACH or cheque clearing.",
				"IMPORTANT: Provide 'search_query' as a plain text string ONLY. Do not use dictionaries or type definitions.",
				"Provide personalized investment or credit card suggestions based on user interests.",
			}, "\n"),
		},
	}
}

// systemPrompt 拼接专家提示词与客户上下文。
func systemPrompt(p Profile, state *State) string {
	var b strings.Builder
	b.WriteString(p.Prompt)
	b.WriteString("\n\n## Customer context\n")
	if state.Customer == nil {
		b.WriteString("The user is not signed in.\n")
	} else {
		fmt.Fprintf(&b, "Name: %s\nEmail: %s\nCustomer ID: %d\n", state.Customer.Name, state.Customer.Email, state.Customer.ID)
	}
	fmt.Fprintf(&b, "Authenticated: %t\n", state.Authenticated)
	return b.String()
}

package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"IVA-Bank/internal/bank"
)

func openTestStore(t *testing.T) *BankStore {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedCustomers(t *testing.T, store *BankStore) (*bank.Customer, *bank.Customer) {
	t.Helper()
	ctx := context.Background()
	alice := &bank.Customer{FullName: "Alice Doe", Email: "alice@example.com", RegistrationNumber: "REG-1", IsAuthenticated: true}
	bob := &bank.Customer{FullName: "Bob Roe", Email: "bob@example.com", IsAuthenticated: true}
	for _, c := range []*bank.Customer{alice, bob} {
		if err := store.CreateCustomer(ctx, c); err != nil {
			t.Fatalf("create customer: %v", err)
		}
	}
	if err := store.OpenAccount(ctx, &bank.Account{CustomerID: alice.ID, AccountNumber: "ACC-1", AccountType: "Savings", Balance: 1_000_000}); err != nil {
		t.Fatalf("open account: %v", err)
	}
	if err := store.OpenAccount(ctx, &bank.Account{CustomerID: bob.ID, AccountNumber: "ACC-2", AccountType: "Checking", Balance: 5_000}); err != nil {
		t.Fatalf("open account: %v", err)
	}
	return alice, bob
}

func TestCustomerLifecycle(t *testing.T) {
	store := openTestStore(t)
	alice, _ := seedCustomers(t, store)
	ctx := context.Background()

	found, err := store.FindCustomerByEmail(ctx, "ALICE@example.com ")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != alice.ID || found.RegistrationNumber != "REG-1" || !found.IsAuthenticated {
		t.Fatalf("unexpected customer: %+v", found)
	}

	if err := store.UpdateCustomerAddress(ctx, alice.ID, " 42 Harbour Rd "); err != nil {
		t.Fatalf("update address: %v", err)
	}
	updated, _ := store.GetCustomer(ctx, alice.ID)
	if updated.Address != "42 Harbour Rd" {
		t.Fatalf("unexpected address: %q", updated.Address)
	}

	if err := store.UpdateCustomerAddress(ctx, 999, "x"); !errors.Is(err, bank.ErrCustomerNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.CreateCustomer(ctx, &bank.Customer{Email: "alice@example.com"}); !errors.Is(err, bank.ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestTransferIsAtomic(t *testing.T) {
	store := openTestStore(t)
	alice, _ := seedCustomers(t, store)
	ctx := context.Background()

	receipt, err := store.Transfer(ctx, bank.TransferRequest{FromAccount: "ACC-1", ToAccount: "ACC-2", Amount: 600_000, Flagged: true, OwnerID: alice.ID})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if receipt.From.Balance != 400_000 || receipt.To.Balance != 605_000 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	if _, err := store.Transfer(ctx, bank.TransferRequest{FromAccount: "ACC-1", ToAccount: "ACC-2", Amount: 400_001}); !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	from, _ := store.GetAccountByNumber(ctx, "ACC-1")
	to, _ := store.GetAccountByNumber(ctx, "ACC-2")
	if from.Balance != 400_000 || to.Balance != 605_000 {
		t.Fatalf("failed transfer changed balances: %d %d", from.Balance, to.Balance)
	}

	debits, _ := store.ListTransactions(ctx, from.ID, 10)
	credits, _ := store.ListTransactions(ctx, to.ID, 10)
	if len(debits) != 1 || len(credits) != 1 {
		t.Fatalf("unexpected transaction counts: %d %d", len(debits), len(credits))
	}
	if debits[0].Amount != -600_000 || !debits[0].IsFraudulent || credits[0].Type != bank.TransactionCredit {
		t.Fatalf("unexpected legs: %+v %+v", debits[0], credits[0])
	}
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	store := openTestStore(t)
	seedCustomers(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Transfer(ctx, bank.TransferRequest{FromAccount: "ACC-2", ToAccount: "ACC-1", Amount: 1_000}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	acc, _ := store.GetAccountByNumber(ctx, "ACC-2")
	if succeeded != 5 || acc.Balance != 0 {
		t.Fatalf("succeeded=%d balance=%d", succeeded, acc.Balance)
	}
}

func TestSubmitApplicationWithPlaceholder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	app, err := store.SubmitApplication(ctx, bank.ApplicationRequest{
		Email: "walkin@example.com", ProductType: "Savings Account", Details: map[string]any{"income": "50000"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	customer, err := store.FindCustomerByEmail(ctx, "walkin@example.com")
	if err != nil {
		t.Fatalf("placeholder missing: %v", err)
	}
	if customer.FullName != "Unknown Applicant" || customer.ID != app.CustomerID {
		t.Fatalf("unexpected placeholder: %+v", customer)
	}

	apps, err := store.ListApplications(ctx, customer.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []bank.Application{{ID: app.ID, CustomerID: customer.ID, Type: "Savings Account", Status: "Pending",
		Details: map[string]any{"income": "50000"}}}
	if diff := cmp.Diff(want, apps, cmpIgnoreTime()); diff != "" {
		t.Fatalf("applications mismatch (-want +got):\n%s", diff)
	}
}

func TestPolicyStorage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	count, _ := store.CountPolicies(ctx)
	if count != 0 {
		t.Fatalf("expected empty table")
	}
	doc := &bank.PolicyDocument{Content: "ACH takes 1-3 days", Metadata: map[string]string{"title": "ACH"}, Embedding: []float32{0.25, 0.5}}
	if err := store.AddPolicies(ctx, []*bank.PolicyDocument{doc}); err != nil {
		t.Fatalf("add: %v", err)
	}
	docs, err := store.ListPolicies(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]bank.PolicyDocument{*doc}, docs); diff != "" {
		t.Fatalf("policies mismatch (-want +got):\n%s", diff)
	}
}

func cmpIgnoreTime() cmp.Option {
	return cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".CreatedAt"
	}, cmp.Ignore())
}

package sqlite

import (
	"encoding/json"
	"time"

	"IVA-Bank/internal/bank"
)

type customerModel struct {
	ID                 int64   `gorm:"primaryKey"`
	FirstName          string  `gorm:"size:128"`
	LastName           string  `gorm:"size:128"`
	FullName           string  `gorm:"size:256"`
	Email              string  `gorm:"size:255;uniqueIndex;not null"`
	HashedPassword     string  `gorm:"size:255"`
	RegistrationNumber *string `gorm:"size:64;uniqueIndex"`
	Phone              string  `gorm:"size:64"`
	Address            string  `gorm:"size:512"`
	IsAuthenticated    bool
	CreatedAt          time.Time
}

func (customerModel) TableName() string { return "customers" }

func (m customerModel) toDomain() *bank.Customer {
	c := &bank.Customer{
		ID:              m.ID,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		FullName:        m.FullName,
		Email:           m.Email,
		HashedPassword:  m.HashedPassword,
		Phone:           m.Phone,
		Address:         m.Address,
		IsAuthenticated: m.IsAuthenticated,
		CreatedAt:       m.CreatedAt.UTC(),
	}
	if m.RegistrationNumber != nil {
		c.RegistrationNumber = *m.RegistrationNumber
	}
	return c
}

func customerFromDomain(c *bank.Customer) customerModel {
	m := customerModel{
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		FullName:        c.FullName,
		Email:           bank.NormalizeEmail(c.Email),
		HashedPassword:  c.HashedPassword,
		Phone:           c.Phone,
		Address:         c.Address,
		IsAuthenticated: c.IsAuthenticated,
		CreatedAt:       c.CreatedAt,
	}
	if c.RegistrationNumber != "" {
		reg := c.RegistrationNumber
		m.RegistrationNumber = &reg
	}
	return m
}

type accountModel struct {
	ID            int64  `gorm:"primaryKey"`
	CustomerID    int64  `gorm:"index;not null"`
	AccountNumber string `gorm:"size:64;uniqueIndex;not null"`
	AccountType   string `gorm:"size:64"`
	BalanceCents  int64  `gorm:"column:balance_cents;not null;default:0"`
}

func (accountModel) TableName() string { return "accounts" }

func (m accountModel) toDomain() bank.Account {
	return bank.Account{
		ID:            m.ID,
		CustomerID:    m.CustomerID,
		AccountNumber: m.AccountNumber,
		AccountType:   m.AccountType,
		Balance:       bank.Cents(m.BalanceCents),
	}
}

type applicationModel struct {
	ID         int64  `gorm:"primaryKey"`
	CustomerID int64  `gorm:"index;not null"`
	Type       string `gorm:"size:128;not null"`
	Status     string `gorm:"size:32;default:Pending"`
	Details    string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (applicationModel) TableName() string { return "applications" }

func (m applicationModel) toDomain() (bank.Application, error) {
	app := bank.Application{ID: m.ID, CustomerID: m.CustomerID, Type: m.Type, Status: m.Status, CreatedAt: m.CreatedAt.UTC()}
	if m.Details != "" {
		if err := json.Unmarshal([]byte(m.Details), &app.Details); err != nil {
			return app, err
		}
	}
	return app, nil
}

type transactionModel struct {
	ID              int64  `gorm:"primaryKey"`
	AccountID       int64  `gorm:"index;not null"`
	AmountCents     int64  `gorm:"column:amount_cents;not null"`
	TransactionType string `gorm:"size:16;not null"`
	Description     string `gorm:"size:512"`
	IsFraudulent    bool
	CreatedAt       time.Time
}

func (transactionModel) TableName() string { return "transactions" }

func (m transactionModel) toDomain() bank.Transaction {
	return bank.Transaction{
		ID:           m.ID,
		AccountID:    m.AccountID,
		Amount:       bank.Cents(m.AmountCents),
		Type:         bank.TransactionType(m.TransactionType),
		Description:  m.Description,
		IsFraudulent: m.IsFraudulent,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type policyModel struct {
	ID           int64  `gorm:"primaryKey"`
	Content      string `gorm:"type:text;not null"`
	MetadataJSON string `gorm:"column:metadata_json;type:text"`
	Embedding    string `gorm:"type:text"`
}

func (policyModel) TableName() string { return "policy_vectors" }

func (m policyModel) toDomain() (bank.PolicyDocument, error) {
	doc := bank.PolicyDocument{ID: m.ID, Content: m.Content}
	if m.MetadataJSON != "" && m.MetadataJSON != "null" {
		if err := json.Unmarshal([]byte(m.MetadataJSON), &doc.Metadata); err != nil {
			return doc, err
		}
	}
	if m.Embedding != "" && m.Embedding != "null" {
		if err := json.Unmarshal([]byte(m.Embedding), &doc.Embedding); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

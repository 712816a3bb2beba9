package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/logger"
)

// RegistryService creates customers and accounts and answers balance lookups.
type RegistryService struct {
	customerRepo CustomerRepository
	accountRepo  AccountRepository
}

// NewRegistryService creates a new instance of RegistryService.
func NewRegistryService(customerRepo CustomerRepository, accountRepo AccountRepository) *RegistryService {
	return &RegistryService{
		customerRepo: customerRepo,
		accountRepo:  accountRepo,
	}
}

// CreateCustomer stores a customer under the caller-supplied id.
func (s *RegistryService) CreateCustomer(ctx context.Context, id int64, name string) (*Customer, error) {
	name = strings.TrimSpace(name)
	if id <= 0 {
		return nil, NewError(KindInvalidArgument, "Customer id must be positive", nil)
	}
	if name == "" {
		return nil, NewError(KindInvalidArgument, "Customer name is required", nil)
	}

	customer := &Customer{ID: id, Name: name}
	if err := s.customerRepo.Create(ctx, customer); err != nil {
		logger.Error("registry create customer failed", err, logger.Fields{"customerId": id})
		return nil, fmt.Errorf("create customer: %w", err)
	}

	logger.Info("registry customer created", logger.Fields{"customerId": id})
	return customer, nil
}

// CreateAccount opens an account for an existing customer with the given initial balance.
func (s *RegistryService) CreateAccount(ctx context.Context, customerID int64, initialDeposit decimal.Decimal) (*Account, error) {
	if initialDeposit.IsNegative() {
		return nil, ErrNegativeDeposit
	}
	if !validMoney(initialDeposit) {
		return nil, ErrAmountPrecision
	}

	exists, err := s.customerRepo.Exists(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("check customer: %w", err)
	}
	if !exists {
		return nil, ErrCustomerNotFound
	}

	account := &Account{CustomerID: customerID, Balance: initialDeposit}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		logger.Error("registry create account failed", err, logger.Fields{"customerId": customerID})
		return nil, fmt.Errorf("create account: %w", err)
	}

	logger.Info("registry account created", logger.Fields{
		"customerId": customerID,
		"accountId":  account.ID,
		"balance":    account.Balance.String(),
	})
	return account, nil
}

// GetBalance retrieves the current state of an account.
func (s *RegistryService) GetBalance(ctx context.Context, accountID int64) (*Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/logger"
)

var demoCustomers = []struct {
	id      int64
	name    string
	deposit int64
}{
	{1, "Arisha Barron", 1000},
	{2, "Branden Gibson", 1500},
	{3, "Rhonda Church", 2000},
	{4, "Georgina Hazel", 2500},
}

// SeedDemo creates the four demo customers with one funded account each.
// Customers that already exist are left untouched, so repeated runs add nothing.
func (s *RegistryService) SeedDemo(ctx context.Context) error {
	for _, c := range demoCustomers {
		if _, err := s.CreateCustomer(ctx, c.id, c.name); err != nil {
			if errors.Is(err, ErrCustomerExists) {
				continue
			}
			return err
		}
		if _, err := s.CreateAccount(ctx, c.id, decimal.NewFromInt(c.deposit)); err != nil {
			return err
		}
	}
	logger.Info("demo data seeded", logger.Fields{"customers": len(demoCustomers)})
	return nil
}

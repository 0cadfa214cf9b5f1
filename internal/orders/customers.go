package orders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ariefcatur/futura-orders/internal/logx"
)

// CustomerService manages customers.
type CustomerService struct {
	Store Store
}

func (c *CustomerService) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	cu := Customer{Name: strings.TrimSpace(in.Name), Email: normalizeEmail(in.Email)}
	if err := validateCustomer(cu); err != nil {
		return Customer{}, err
	}

	err := c.Store.InTx(ctx, func(tx Store) error {
		if err := emailFree(ctx, tx, cu.Email, 0); err != nil {
			return err
		}
		if err := tx.InsertCustomer(ctx, &cu); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				return conflict("email %s already exists", cu.Email)
			}
			return fmt.Errorf("insert customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return Customer{}, err
	}
	logx.FromCtx(ctx).Info("customer created", "customer_id", cu.ID)
	return cu, nil
}

func (c *CustomerService) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	cu, err := c.Store.CustomerByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return Customer{}, notFound("customer %d not found", id)
		}
		return Customer{}, fmt.Errorf("load customer: %w", err)
	}
	return cu, nil
}

func (c *CustomerService) ListCustomers(ctx context.Context) ([]Customer, error) {
	list, err := c.Store.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return list, nil
}

func (c *CustomerService) UpdateCustomer(ctx context.Context, id int64, patch CustomerPatch) (Customer, error) {
	var out Customer
	err := c.Store.InTx(ctx, func(tx Store) error {
		cu, err := tx.CustomerByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("customer %d not found", id)
			}
			return fmt.Errorf("load customer: %w", err)
		}
		if patch.Name != nil {
			cu.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Email != nil {
			cu.Email = normalizeEmail(*patch.Email)
		}
		if err := validateCustomer(cu); err != nil {
			return err
		}
		if patch.Email != nil {
			if err := emailFree(ctx, tx, cu.Email, cu.ID); err != nil {
				return err
			}
		}
		if err := tx.UpdateCustomer(ctx, &cu); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				return conflict("email %s already exists", cu.Email)
			}
			return fmt.Errorf("update customer: %w", err)
		}
		out = cu
		return nil
	})
	if err != nil {
		return Customer{}, err
	}
	return out, nil
}

// DeleteCustomer refuses to remove a customer that still has orders.
func (c *CustomerService) DeleteCustomer(ctx context.Context, id int64) error {
	err := c.Store.InTx(ctx, func(tx Store) error {
		if _, err := tx.CustomerByID(ctx, id); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("customer %d not found", id)
			}
			return fmt.Errorf("load customer: %w", err)
		}
		has, err := tx.CustomerHasOrders(ctx, id)
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		if has {
			return conflict("customer %d has orders", id)
		}
		if err := tx.DeleteCustomer(ctx, id); err != nil {
			return fmt.Errorf("delete customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logx.FromCtx(ctx).Info("customer deleted", "customer_id", id)
	return nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validateCustomer(c Customer) error {
	if c.Name == "" {
		return invalid("name is required")
	}
	if c.Email == "" {
		return invalid("email is required")
	}
	if a, err := mail.ParseAddress(c.Email); err != nil || a.Address != c.Email {
		return invalid("email %s is not valid", c.Email)
	}
	return nil
}

func emailFree(ctx context.Context, tx Store, email string, self int64) error {
	other, err := tx.CustomerByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNoRecord):
		return nil
	case err != nil:
		return fmt.Errorf("lookup email: %w", err)
	case other.ID != self:
		return conflict("email %s already exists", email)
	}
	return nil
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/futura-orders/internal/logx"
	"github.com/shopspring/decimal"
)

// CatalogService manages products.
type CatalogService struct {
	Store Store
}

func (c *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	p := Product{
		Name:  strings.TrimSpace(in.Name),
		SKU:   strings.TrimSpace(in.SKU),
		Price: in.Price,
		Stock: in.Stock,
	}
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}

	err := c.Store.InTx(ctx, func(tx Store) error {
		if err := skuFree(ctx, tx, p.SKU, 0); err != nil {
			return err
		}
		if err := tx.InsertProduct(ctx, &p); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				return conflict("sku %s already exists", p.SKU)
			}
			return fmt.Errorf("insert product: %w", err)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	logx.FromCtx(ctx).Info("product created", "product_id", p.ID, "sku", p.SKU)
	return p, nil
}

func (c *CatalogService) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := c.Store.ProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return Product{}, notFound("product %d not found", id)
		}
		return Product{}, fmt.Errorf("load product: %w", err)
	}
	return p, nil
}

func (c *CatalogService) ListProducts(ctx context.Context) ([]Product, error) {
	list, err := c.Store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return list, nil
}

// UpdateProduct applies the non-nil fields of patch.
func (c *CatalogService) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	var out Product
	err := c.Store.InTx(ctx, func(tx Store) error {
		p, err := tx.ProductByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("product %d not found", id)
			}
			return fmt.Errorf("load product: %w", err)
		}
		if patch.Name != nil {
			p.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.SKU != nil {
			p.SKU = strings.TrimSpace(*patch.SKU)
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		if err := validateProduct(p); err != nil {
			return err
		}
		if patch.SKU != nil {
			if err := skuFree(ctx, tx, p.SKU, p.ID); err != nil {
				return err
			}
		}
		if err := tx.UpdateProduct(ctx, &p); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				return conflict("sku %s already exists", p.SKU)
			}
			return fmt.Errorf("update product: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return out, nil
}

// DeleteProduct removes the product. Order items that referenced it keep
// their qty and price but lose the product link.
func (c *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	err := c.Store.InTx(ctx, func(tx Store) error {
		if _, err := tx.ProductByID(ctx, id); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound("product %d not found", id)
			}
			return fmt.Errorf("load product: %w", err)
		}
		if err := tx.DeleteProduct(ctx, id); err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logx.FromCtx(ctx).Info("product deleted", "product_id", id)
	return nil
}

func validateProduct(p Product) error {
	switch {
	case p.Name == "":
		return invalid("name is required")
	case p.SKU == "":
		return invalid("sku is required")
	case p.Price.IsNegative():
		return invalid("price must not be negative")
	case !p.Price.Equal(p.Price.Round(2)):
		return invalid("price must have at most 2 decimal places")
	case p.Price.GreaterThanOrEqual(maxPrice):
		return invalid("price must be less than %s", maxPrice.String())
	case p.Stock < 0:
		return invalid("stock must not be negative")
	}
	return nil
}

// NUMERIC(10,2)
var maxPrice = decimal.New(1, 8)

// skuFree fails with a conflict when another product (id != self) owns sku.
func skuFree(ctx context.Context, tx Store, sku string, self int64) error {
	other, err := tx.ProductBySKU(ctx, sku)
	switch {
	case errors.Is(err, ErrNoRecord):
		return nil
	case err != nil:
		return fmt.Errorf("lookup sku: %w", err)
	case other.ID != self:
		return conflict("sku %s already exists", sku)
	}
	return nil
}

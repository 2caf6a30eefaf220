package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-shop-bot/internal/model"
)

// Inventory errors.
var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrStockExhausted   = errors.New("stock exhausted")
)

// ProductRepository handles categories and products. Stock of -1 marks
// unlimited inventory and is never decremented.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository creates a new ProductRepository instance.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// CreateCategory inserts a category and returns it.
func (r *ProductRepository) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	const query = `INSERT INTO categories (name) VALUES ($1) RETURNING id, name`

	var c model.Category
	if err := r.pool.QueryRow(ctx, query, name).Scan(&c.ID, &c.Name); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return &c, nil
}

// DeleteCategory removes a category and, via cascade, its products.
func (r *ProductRepository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (r *ProductRepository) ListCategories(ctx context.Context) ([]*model.Category, error) {
	const query = `SELECT id, name FROM categories ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var cats []*model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cats = append(cats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return cats, nil
}

const productColumns = `id, category_id, type, name, description, price, content, stock`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Type, &p.Name, &p.Description, &p.Price, &p.Content, &p.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return &p, nil
}

// CreateProduct inserts a product and returns it.
func (r *ProductRepository) CreateProduct(ctx context.Context, p *model.Product) (*model.Product, error) {
	query := `
		INSERT INTO products (category_id, type, name, description, price, content, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + productColumns

	created, err := scanProduct(r.pool.QueryRow(ctx, query,
		p.CategoryID, p.Type, p.Name, p.Description, p.Price, p.Content, p.Stock))
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return created, nil
}

// DeleteProduct removes a product.
func (r *ProductRepository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetProduct retrieves a product by ID on the caller's Querier.
func (r *ProductRepository) GetProduct(ctx context.Context, q Querier, id int64) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return scanProduct(q.QueryRow(ctx, query, id))
}

// ListByCategory returns a category's products ordered by name.
func (r *ProductRepository) ListByCategory(ctx context.Context, categoryID int64) ([]*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE category_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// Reserve decrements stock by qty if enough remains. Unlimited products
// (stock = -1) always succeed and keep the sentinel untouched. Zero rows
// affected is disambiguated into ErrProductNotFound or ErrStockExhausted.
func (r *ProductRepository) Reserve(ctx context.Context, q Querier, productID int64, qty int) error {
	const query = `
		UPDATE products
		SET stock = CASE WHEN stock = -1 THEN stock ELSE stock - $2 END
		WHERE id = $1 AND (stock = -1 OR stock >= $2)
	`

	tag, err := q.Exec(ctx, query, productID, qty)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		const check = `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`
		if err := q.QueryRow(ctx, check, productID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check product existence: %w", err)
		}
		if !exists {
			return ErrProductNotFound
		}
		return ErrStockExhausted
	}
	return nil
}

// SetStock sets a product's stock level. -1 switches the product to
// unlimited inventory.
func (r *ProductRepository) SetStock(ctx context.Context, id int64, stock int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET stock = $2 WHERE id = $1`, id, stock)
	if err != nil {
		return fmt.Errorf("failed to set stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// SetPrice updates a product's price.
func (r *ProductRepository) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET price = $2 WHERE id = $1`, id, price)
	if err != nil {
		return fmt.Errorf("failed to set price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

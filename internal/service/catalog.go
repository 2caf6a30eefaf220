package service

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/repository"
)

// CatalogService exposes admin management of categories, products, promo
// codes and tasks. These are plain writes; the commerce invariants live in
// the purchase and reward paths.
type CatalogService struct {
	pool      *pgxpool.Pool
	products  *repository.ProductRepository
	promos    *repository.PromoRepository
	tasks     *repository.TaskRepository
	opTimeout time.Duration
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(pool *pgxpool.Pool, products *repository.ProductRepository, promos *repository.PromoRepository, tasks *repository.TaskRepository, opTimeout time.Duration) *CatalogService {
	return &CatalogService{
		pool:      pool,
		products:  products,
		promos:    promos,
		tasks:     tasks,
		opTimeout: opTimeout,
	}
}

// AddCategory creates a category.
func (s *CatalogService) AddCategory(ctx context.Context, name string) (*model.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	cat, err := s.products.CreateCategory(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	log.Info().Str("category", cat.Name).Msg("Category created")
	return cat, nil
}

// RemoveCategory deletes a category and its products.
func (s *CatalogService) RemoveCategory(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.products.DeleteCategory(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// AddProduct creates a product.
func (s *CatalogService) AddProduct(ctx context.Context, p *model.Product) (*model.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	created, err := s.products.CreateProduct(ctx, p)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	log.Info().Str("product", created.Name).Int64("id", created.ID).Msg("Product created")
	return created, nil
}

// RemoveProduct deletes a product.
func (s *CatalogService) RemoveProduct(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// SetStock updates a product's stock level. -1 makes it unlimited.
func (s *CatalogService) SetStock(ctx context.Context, id int64, stock int) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.products.SetStock(ctx, id, stock); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// SetPrice updates a product's price.
func (s *CatalogService) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.products.SetPrice(ctx, id, price); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// AddPromo creates a promo code.
func (s *CatalogService) AddPromo(ctx context.Context, code string, reward decimal.Decimal, maxUsage int, expiresAt *time.Time) (*model.Promo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	promo, err := s.promos.Create(ctx, strings.TrimSpace(code), reward, maxUsage, expiresAt)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	log.Info().Str("code", promo.Code).Msg("Promo created")
	return promo, nil
}

// RemovePromo deletes a promo code.
func (s *CatalogService) RemovePromo(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.promos.Delete(ctx, code); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// AddTask creates a task.
func (s *CatalogService) AddTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	created, err := s.tasks.Create(ctx, t)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	log.Info().Int64("task", created.ID).Msg("Task created")
	return created, nil
}

// RemoveTask deletes a task.
func (s *CatalogService) RemoveTask(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.tasks.Delete(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// Tasks lists all tasks together with the account's completion set.
func (s *CatalogService) Tasks(ctx context.Context, accountID int64) ([]*model.Task, map[int64]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return nil, nil, mapStoreErr(err)
	}
	done, err := s.tasks.CompletedIDs(ctx, accountID)
	if err != nil {
		return nil, nil, mapStoreErr(err)
	}
	return tasks, done, nil
}

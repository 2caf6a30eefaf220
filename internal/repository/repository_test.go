// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.NewPoolFromDSN(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool.Pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool.Pool, cleanup
}

func mustAccount(t *testing.T, pool *pgxpool.Pool, id int64) {
	t.Helper()
	repo := NewAccountRepository(pool)
	created, err := repo.CreateIfAbsent(context.Background(), pool, id, "user", "Test User", nil)
	require.NoError(t, err)
	require.True(t, created)
}

func credit(t *testing.T, pool *pgxpool.Pool, id int64, amount int64) {
	t.Helper()
	ledger := NewLedgerRepository(pool)
	err := ledger.Apply(context.Background(), pool, id, decimal.NewFromInt(amount), model.TxKindAdminAdjust, nil)
	require.NoError(t, err)
}

func TestAccountRepository_CreateIfAbsent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	created, err := repo.CreateIfAbsent(ctx, pool, 100, "alice", "Alice", nil)
	require.NoError(t, err)
	assert.True(t, created)

	// Second contact is a no-op.
	created, err = repo.CreateIfAbsent(ctx, pool, 100, "alice", "Alice", nil)
	require.NoError(t, err)
	assert.False(t, created)

	account, err := repo.GetByID(ctx, pool, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.ID)
	assert.True(t, account.Balance.IsZero())
	assert.False(t, account.Banned)
	assert.Nil(t, account.LastDailyClaim)
}

func TestAccountRepository_GetByID_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	_, err := repo.GetByID(context.Background(), pool, 999)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_ClaimDaily_Window(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()
	mustAccount(t, pool, 200)

	now := time.Now().UTC()
	cutoff := now.Add(-24 * time.Hour)

	ok, err := repo.ClaimDaily(ctx, pool, 200, now, cutoff)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second claim inside the window is rejected.
	ok, err = repo.ClaimDaily(ctx, pool, 200, now, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)

	// Once the stored claim is older than the cutoff, claiming works again.
	later := now.Add(25 * time.Hour)
	ok, err = repo.ClaimDaily(ctx, pool, 200, later, later.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedgerRepository_Apply(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	ledger := NewLedgerRepository(pool)
	ctx := context.Background()
	mustAccount(t, pool, 300)

	// Credit.
	err := ledger.Apply(ctx, pool, 300, decimal.NewFromInt(50), model.TxKindDaily, nil)
	require.NoError(t, err)

	// Debit within balance.
	desc := "Purchase: widget"
	err = ledger.Apply(ctx, pool, 300, decimal.NewFromInt(-20), model.TxKindPurchase, &desc)
	require.NoError(t, err)

	account, err := accounts.GetByID(ctx, pool, 300)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(30)), "balance = %s", account.Balance)
	assert.True(t, account.TotalSpent.Equal(decimal.NewFromInt(20)), "total_spent = %s", account.TotalSpent)

	// Debit past zero is rejected whole.
	err = ledger.Apply(ctx, pool, 300, decimal.NewFromInt(-100), model.TxKindPurchase, nil)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Missing account is distinguished from insufficient funds.
	err = ledger.Apply(ctx, pool, 999, decimal.NewFromInt(-1), model.TxKindPurchase, nil)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	// Ledger sum equals the balance column.
	sum, err := ledger.Sum(ctx, 300)
	require.NoError(t, err)
	account, err = accounts.GetByID(ctx, pool, 300)
	require.NoError(t, err)
	assert.True(t, sum.Equal(account.Balance), "sum %s != balance %s", sum, account.Balance)
}

func TestLedgerRepository_History(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewLedgerRepository(pool)
	ctx := context.Background()
	mustAccount(t, pool, 310)
	credit(t, pool, 310, 10)
	credit(t, pool, 310, 20)

	txs, err := ledger.History(ctx, 310, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	// Newest first.
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(20)))
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, stock int) *model.Product {
	t.Helper()
	repo := NewProductRepository(pool)
	cat, err := repo.CreateCategory(context.Background(), "Cat-"+time.Now().Format("150405.000000000"))
	require.NoError(t, err)
	p, err := repo.CreateProduct(context.Background(), &model.Product{
		CategoryID:  cat.ID,
		Type:        model.FulfillmentDigital,
		Name:        "Widget",
		Description: "A widget",
		Price:       decimal.NewFromInt(10),
		Content:     "CODE-123",
		Stock:       stock,
	})
	require.NoError(t, err)
	return p
}

func TestProductRepository_Reserve(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProductRepository(pool)
	ctx := context.Background()
	p := seedProduct(t, pool, 2)

	require.NoError(t, repo.Reserve(ctx, pool, p.ID, 1))
	require.NoError(t, repo.Reserve(ctx, pool, p.ID, 1))

	err := repo.Reserve(ctx, pool, p.ID, 1)
	assert.ErrorIs(t, err, ErrStockExhausted)

	got, err := repo.GetProduct(ctx, pool, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	err = repo.Reserve(ctx, pool, 99999, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductRepository_Reserve_UnlimitedSentinel(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProductRepository(pool)
	ctx := context.Background()
	p := seedProduct(t, pool, model.UnlimitedStock)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Reserve(ctx, pool, p.ID, 1))
	}

	got, err := repo.GetProduct(ctx, pool, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnlimitedStock, got.Stock, "sentinel must never be decremented")
	assert.True(t, got.Unlimited())
}

func TestPromoRepository_WriteOnceAndCap(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPromoRepository(pool)
	ctx := context.Background()
	mustAccount(t, pool, 400)
	mustAccount(t, pool, 401)

	_, err := repo.Create(ctx, "WELCOME", decimal.NewFromInt(5), 2, nil)
	require.NoError(t, err)

	used, err := repo.MarkUsed(ctx, pool, "WELCOME", 400)
	require.NoError(t, err)
	assert.True(t, used)

	// Same account again: write-once.
	used, err = repo.MarkUsed(ctx, pool, "WELCOME", 400)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, repo.IncrementUsage(ctx, pool, "WELCOME"))
	require.NoError(t, repo.IncrementUsage(ctx, pool, "WELCOME"))

	// Cap reached.
	err = repo.IncrementUsage(ctx, pool, "WELCOME")
	assert.ErrorIs(t, err, ErrPromoExhausted)

	_, err = repo.Get(ctx, pool, "MISSING")
	assert.ErrorIs(t, err, ErrPromoNotFound)
}

func TestPromoRepository_UnlimitedUsage(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPromoRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "FOREVER", decimal.NewFromInt(1), model.UnlimitedUsage, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, repo.IncrementUsage(ctx, pool, "FOREVER"))
	}
}

func TestOrderRepository_ForwardOnlyTransitions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOrderRepository(pool)
	ctx := context.Background()
	mustAccount(t, pool, 500)
	p := seedProduct(t, pool, 5)

	order, err := repo.Create(ctx, pool, 500, p.ID, model.OrderPending, "Some address")
	require.NoError(t, err)

	require.NoError(t, repo.Transition(ctx, order.ID, model.OrderDelivered))

	// Terminal orders never move again.
	err = repo.Transition(ctx, order.ID, model.OrderRejected)
	assert.ErrorIs(t, err, ErrOrderNotPending)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, got.Status)
	assert.Equal(t, "Widget", got.ProductName)

	err = repo.Transition(ctx, 99999, model.OrderDelivered)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestTaskRepository_MarkCompletedOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTaskRepository(pool)
	ctx := context.Background()
	mustAccount(t, pool, 600)

	task, err := repo.Create(ctx, &model.Task{Description: "Join channel", Link: "https://t.me/x", Reward: decimal.NewFromInt(3)})
	require.NoError(t, err)

	done, err := repo.MarkCompleted(ctx, pool, task.ID, 600)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = repo.MarkCompleted(ctx, pool, task.ID, 600)
	require.NoError(t, err)
	assert.False(t, done)

	ids, err := repo.CompletedIDs(ctx, 600)
	require.NoError(t, err)
	assert.True(t, ids[task.ID])
}

func TestAccountRepository_Stats(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	orders := NewOrderRepository(pool)
	ctx := context.Background()

	mustAccount(t, pool, 700)
	mustAccount(t, pool, 701)
	credit(t, pool, 700, 40)
	p := seedProduct(t, pool, 5)
	_, err := orders.Create(ctx, pool, 700, p.ID, model.OrderDelivered, "")
	require.NoError(t, err)

	stats, err := accounts.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalAccounts)
	assert.Equal(t, int64(1), stats.CompletedOrders)
	assert.True(t, stats.Revenue.Equal(decimal.NewFromInt(10)))
	assert.True(t, stats.TotalBalance.Equal(decimal.NewFromInt(40)))
}

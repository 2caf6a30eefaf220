// Integration tests for the commerce engine. A PostgreSQL container backs
// every test; concurrency tests exercise the real transaction guards.
package service

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/pkg/db"
	"telegram-shop-bot/internal/repository"
)

func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// engine bundles the services under test with their backing repositories.
type engine struct {
	pool      *pgxpool.Pool
	accounts  *AccountService
	rewards   *RewardService
	purchases *PurchaseService
	orders    *OrderService
	catalog   *CatalogService

	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	productRepo *repository.ProductRepository
	orderRepo   *repository.OrderRepository
	promoRepo   *repository.PromoRepository
	taskRepo    *repository.TaskRepository
}

func testSnapshot() *config.Snapshot {
	return &config.Snapshot{
		Currency:        "$",
		ShopEnabled:     true,
		DailyEnabled:    true,
		ScratchEnabled:  true,
		ReferralEnabled: true,
		ReferralReward:  decimal.NewFromInt(5),
		DailyReward:     decimal.NewFromInt(2),
		ScratchRewards:  []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(5)},
	}
}

func setupEngine(t *testing.T) (*engine, func()) {
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
	require.NoError(t, repository.Migrate(ctx, pool.Pool))

	runtime := config.NewRuntime("", testSnapshot())

	accountRepo := repository.NewAccountRepository(pool.Pool)
	ledgerRepo := repository.NewLedgerRepository(pool.Pool)
	productRepo := repository.NewProductRepository(pool.Pool)
	orderRepo := repository.NewOrderRepository(pool.Pool)
	promoRepo := repository.NewPromoRepository(pool.Pool)
	taskRepo := repository.NewTaskRepository(pool.Pool)

	const opTimeout = 10 * time.Second
	e := &engine{
		pool:        pool.Pool,
		accounts:    NewAccountService(pool.Pool, accountRepo, ledgerRepo, runtime, opTimeout),
		rewards:     NewRewardService(pool.Pool, accountRepo, ledgerRepo, promoRepo, taskRepo, runtime, opTimeout, 24*time.Hour),
		purchases:   NewPurchaseService(pool.Pool, accountRepo, ledgerRepo, productRepo, orderRepo, runtime, nil, opTimeout),
		orders:      NewOrderService(pool.Pool, orderRepo, opTimeout),
		catalog:     NewCatalogService(pool.Pool, productRepo, promoRepo, taskRepo, opTimeout),
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		promoRepo:   promoRepo,
		taskRepo:    taskRepo,
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return e, cleanup
}

func (e *engine) register(t *testing.T, id int64) *model.Account {
	t.Helper()
	account, _, err := e.accounts.Touch(context.Background(), id, "user", "Test User", nil)
	require.NoError(t, err)
	return account
}

func (e *engine) fund(t *testing.T, id int64, amount int64) {
	t.Helper()
	require.NoError(t, e.accounts.AdjustBalance(context.Background(), id, decimal.NewFromInt(amount), "test funding"))
}

func (e *engine) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	account, err := e.accounts.Lookup(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

// assertLedgerInvariant checks balance == sum(transactions).
func (e *engine) assertLedgerInvariant(t *testing.T, id int64) {
	t.Helper()
	sum, err := e.ledgerRepo.Sum(context.Background(), id)
	require.NoError(t, err)
	bal := e.balance(t, id)
	assert.True(t, sum.Equal(bal), "ledger sum %s != balance %s", sum, bal)
}

func (e *engine) seedProduct(t *testing.T, ptype string, price int64, stock int) *model.Product {
	t.Helper()
	cat, err := e.catalog.AddCategory(context.Background(), "Digital goods "+time.Now().Format("15:04:05.000000000"))
	require.NoError(t, err)
	p, err := e.catalog.AddProduct(context.Background(), &model.Product{
		CategoryID:  cat.ID,
		Type:        ptype,
		Name:        "Widget",
		Description: "A widget",
		Price:       decimal.NewFromInt(price),
		Content:     "SECRET-CODE",
		Stock:       stock,
	})
	require.NoError(t, err)
	return p
}

func TestTouch_ReferralExactlyOnce(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	referrer := e.register(t, 1)
	require.True(t, referrer.Balance.IsZero())

	refID := referrer.ID
	_, created, err := e.accounts.Touch(ctx, 2, "bob", "Bob", &refID)
	require.NoError(t, err)
	assert.True(t, created)

	// Referrer got exactly one signup bonus.
	assert.True(t, e.balance(t, 1).Equal(decimal.NewFromInt(5)))

	// Restarting does not pay again.
	_, created, err = e.accounts.Touch(ctx, 2, "bob", "Bob", &refID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, e.balance(t, 1).Equal(decimal.NewFromInt(5)))

	e.assertLedgerInvariant(t, 1)

	txs, err := e.accounts.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxKindReferral, txs[0].Kind)
}

func TestTouch_SelfReferralIgnored(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	self := int64(3)
	account, created, err := e.accounts.Touch(context.Background(), 3, "eve", "Eve", &self)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, account.ReferrerID)
	assert.True(t, account.Balance.IsZero())
}

func TestClaimDaily_ConcurrentSingleWinner(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	e.register(t, 10)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.rewards.ClaimDaily(context.Background(), 10)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyClaimed)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent claim may win")
	assert.True(t, e.balance(t, 10).Equal(decimal.NewFromInt(2)))
	e.assertLedgerInvariant(t, 10)
}

func TestClaimScratch_PaysConfiguredReward(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	e.register(t, 11)

	amount, err := e.rewards.ClaimScratch(context.Background(), 11)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(1)) || amount.Equal(decimal.NewFromInt(5)))
	assert.True(t, e.balance(t, 11).Equal(amount))

	_, err = e.rewards.ClaimScratch(context.Background(), 11)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	e.assertLedgerInvariant(t, 11)
}

func TestRedeemPromo_PerAccountExclusive(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 20)
	e.register(t, 21)
	e.register(t, 22)

	_, err := e.catalog.AddPromo(ctx, "BONUS", decimal.NewFromInt(7), 2, nil)
	require.NoError(t, err)

	amount, err := e.rewards.RedeemPromo(ctx, 20, "BONUS")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(7)))

	// Same account cannot redeem twice.
	_, err = e.rewards.RedeemPromo(ctx, 20, "BONUS")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.True(t, e.balance(t, 20).Equal(decimal.NewFromInt(7)))

	// Second slot goes to another account, then the cap closes the code.
	_, err = e.rewards.RedeemPromo(ctx, 21, "BONUS")
	require.NoError(t, err)
	_, err = e.rewards.RedeemPromo(ctx, 22, "BONUS")
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.True(t, e.balance(t, 22).IsZero(), "failed redemption must not credit")

	// Unknown code.
	_, err = e.rewards.RedeemPromo(ctx, 20, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemPromo_ConcurrentSameAccount(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 23)
	_, err := e.catalog.AddPromo(ctx, "RACE", decimal.NewFromInt(5), -1, nil)
	require.NoError(t, err)

	const attempts = 6
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.rewards.RedeemPromo(ctx, 23, "RACE")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "one usage row, one credit")
	assert.True(t, e.balance(t, 23).Equal(decimal.NewFromInt(5)))
	e.assertLedgerInvariant(t, 23)
}

func TestRedeemPromo_Expired(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 25)
	past := time.Now().UTC().Add(-time.Hour)
	_, err := e.catalog.AddPromo(ctx, "OLD", decimal.NewFromInt(3), -1, &past)
	require.NoError(t, err)

	_, err = e.rewards.RedeemPromo(ctx, 25, "OLD")
	assert.ErrorIs(t, err, ErrExpired)
	assert.True(t, e.balance(t, 25).IsZero())
}

func TestCompleteTask_PaysOnce(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 30)
	task, err := e.catalog.AddTask(ctx, &model.Task{Description: "Join channel", Reward: decimal.NewFromInt(4)})
	require.NoError(t, err)

	amount, err := e.rewards.CompleteTask(ctx, 30, task.ID)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(4)))

	_, err = e.rewards.CompleteTask(ctx, 30, task.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.True(t, e.balance(t, 30).Equal(decimal.NewFromInt(4)))
	e.assertLedgerInvariant(t, 30)
}

func TestPurchase_DigitalDeliveredImmediately(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 40)
	e.fund(t, 40, 100)
	p := e.seedProduct(t, model.FulfillmentDigital, 30, 5)

	result, err := e.purchases.Purchase(ctx, 40, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, result.Order.Status)
	assert.Equal(t, "SECRET-CODE", result.Order.FulfillmentData)

	account, err := e.accounts.Lookup(ctx, 40)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(70)))
	assert.True(t, account.TotalSpent.Equal(decimal.NewFromInt(30)))

	got, err := e.purchases.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Stock)
	e.assertLedgerInvariant(t, 40)
}

func TestPurchase_ExactBalanceLastUnit(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 45)
	e.fund(t, 45, 10)
	p := e.seedProduct(t, model.FulfillmentDigital, 10, 1)

	_, err := e.purchases.Purchase(ctx, 45, p.ID, "")
	require.NoError(t, err)
	assert.True(t, e.balance(t, 45).IsZero())

	got, err := e.purchases.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	e.fund(t, 45, 10)
	_, err = e.purchases.Purchase(ctx, 45, p.ID, "")
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestPurchase_InsufficientFundsLeavesNoTrace(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 41)
	e.fund(t, 41, 5)
	p := e.seedProduct(t, model.FulfillmentDigital, 30, 5)

	_, err := e.purchases.Purchase(ctx, 41, p.ID, "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Nothing changed: stock intact, no order, balance intact.
	got, err := e.purchases.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock, "stock reservation must roll back with the failed debit")
	orders, err := e.orders.ListForAccount(ctx, 41, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.True(t, e.balance(t, 41).Equal(decimal.NewFromInt(5)))
}

func TestPurchase_ConcurrentLastUnit(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 50)
	e.register(t, 51)
	e.fund(t, 50, 100)
	e.fund(t, 51, 100)
	p := e.seedProduct(t, model.FulfillmentDigital, 10, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, buyer := range []int64{50, 51} {
		wg.Add(1)
		go func(i int, buyer int64) {
			defer wg.Done()
			_, errs[i] = e.purchases.Purchase(ctx, buyer, p.ID, "")
		}(i, buyer)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrOutOfStock)
		}
	}
	assert.Equal(t, 1, wins, "one unit, one winner")

	// The loser keeps their full balance.
	total := e.balance(t, 50).Add(e.balance(t, 51))
	assert.True(t, total.Equal(decimal.NewFromInt(190)), "exactly one debit, got total %s", total)

	got, err := e.purchases.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestPurchase_PhysicalNeedsAddress(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 60)
	e.fund(t, 60, 50)
	p := e.seedProduct(t, model.FulfillmentPhysical, 20, 3)

	_, err := e.purchases.Purchase(ctx, 60, p.ID, "")
	assert.ErrorIs(t, err, ErrAddressRequired)
	assert.True(t, e.balance(t, 60).Equal(decimal.NewFromInt(50)), "no debit without address")

	result, err := e.purchases.Purchase(ctx, 60, p.ID, "1 Main St, Springfield")
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, result.Order.Status)
	assert.Equal(t, "1 Main St, Springfield", result.Order.FulfillmentData)
	assert.True(t, e.balance(t, 60).Equal(decimal.NewFromInt(30)))
}

func TestPurchase_BannedAccountRejected(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 70)
	e.fund(t, 70, 100)
	require.NoError(t, e.accounts.SetBanned(ctx, 70, true))
	p := e.seedProduct(t, model.FulfillmentDigital, 10, 5)

	_, err := e.purchases.Purchase(ctx, 70, p.ID, "")
	assert.ErrorIs(t, err, ErrBanned)

	_, err = e.rewards.ClaimDaily(ctx, 70)
	assert.ErrorIs(t, err, ErrBanned)
}

func TestAdjustBalance_NeverNegative(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 80)
	e.fund(t, 80, 10)

	err := e.accounts.AdjustBalance(ctx, 80, decimal.NewFromInt(-20), "oops")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, e.balance(t, 80).Equal(decimal.NewFromInt(10)))
	e.assertLedgerInvariant(t, 80)
}

func TestOrderService_Transitions(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	e.register(t, 90)
	e.fund(t, 90, 100)
	p := e.seedProduct(t, model.FulfillmentPhysical, 10, 5)

	result, err := e.purchases.Purchase(ctx, 90, p.ID, "Some address")
	require.NoError(t, err)

	pending, err := e.orders.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, e.orders.MarkDelivered(ctx, result.Order.ID))

	// Terminal state is final.
	err = e.orders.Reject(ctx, result.Order.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	err = e.orders.MarkDelivered(ctx, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeatureToggles(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()
	ctx := context.Background()

	snap := testSnapshot()
	snap.DailyEnabled = false
	snap.ShopEnabled = false
	runtime := config.NewRuntime("", snap)

	rewards := NewRewardService(e.pool, e.accountRepo, e.ledgerRepo, e.promoRepo, e.taskRepo, runtime, 10*time.Second, 24*time.Hour)
	purchases := NewPurchaseService(e.pool, e.accountRepo, e.ledgerRepo, e.productRepo, e.orderRepo, runtime, nil, 10*time.Second)

	e.register(t, 95)
	_, err := rewards.ClaimDaily(ctx, 95)
	assert.ErrorIs(t, err, ErrFeatureDisabled)
	_, err = purchases.Purchase(ctx, 95, 1, "")
	assert.ErrorIs(t, err, ErrFeatureDisabled)
}

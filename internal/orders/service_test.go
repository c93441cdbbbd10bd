package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/products"
	"github.com/angelmondragon/audiophile-backend/internal/users"
	dbpkg "github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/db/dbtest"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/outbox"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

type recordingInvalidator struct {
	mu     sync.Mutex
	owners []cart.Owner
}

func (r *recordingInvalidator) InvalidateCount(_ context.Context, owners ...cart.Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, owners...)
}

type fixture struct {
	db     *gorm.DB
	svc    Service
	carts  cart.Service
	counts *recordingInvalidator
	user   models.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.SeedProduct(t, db, 1, "XX99 Mark II Headphones", 10000)
	dbtest.SeedProduct(t, db, 2, "ZX9 Speaker", 450000)
	user := dbtest.SeedUser(t, db, "buyer@example.com")

	tx := dbpkg.NewFromConn(db)
	carts, err := cart.NewService(cart.ServiceParams{
		Repo:     cart.NewRepository(db),
		Tx:       tx,
		Products: products.NewRepository(db),
	})
	require.NoError(t, err)

	counts := &recordingInvalidator{}
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(db),
		Carts:  cart.NewRepository(db),
		Users:  users.NewRepository(db),
		Tx:     tx,
		Outbox: outbox.NewEmitter(outbox.NewRepository(db), nil),
		Counts: counts,
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return fixture{db: db, svc: svc, carts: carts, counts: counts, user: user}
}

func (f fixture) fillCart(t *testing.T, productID int64, qty int) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), cart.UserOwner(f.user.ID), cart.AddItemInput{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
}

func (f fixture) input(method enums.PaymentMethod) CreateOrderInput {
	return CreateOrderInput{
		UserID: f.user.ID,
		ShippingAddress: types.ShippingAddress{
			FullName: "Alexei Ward",
			Email:    "alexei@mail.com",
			Phone:    "+1 202-555-0136",
			Address:  "1137 Williams Avenue",
			ZipCode:  "10001",
			City:     "New York",
			Country:  "United States",
		},
		PaymentMethod: method,
	}
}

func (f fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f fixture) eventTypes(t *testing.T) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.db.Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCreateOrderEmptyCartPersistsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), f.input(enums.PaymentMethodCashOnDelivery))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.OrderItem{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))
}

func TestCreateOrderCashOnDeliverySettlesAndClearsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 2)

	id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodCashOnDelivery))
	require.NoError(t, err)

	order, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 20000, order.ItemsPrice)
	assert.EqualValues(t, 5000, order.ShippingPrice)
	assert.EqualValues(t, 4000, order.TaxPrice)
	assert.EqualValues(t, 29000, order.TotalPrice)
	assert.True(t, order.IsPaid)
	assert.Equal(t, enums.PaymentStatePaid, order.PaymentState)
	require.NotNil(t, order.PaidAt)
	assert.True(t, fixedNow.Equal(*order.PaidAt))
	require.NotNil(t, order.PaymentResult)
	assert.Equal(t, "290.00", order.PaymentResult.PricePaid)
	assert.Equal(t, types.PaymentStatusCompleted, order.PaymentResult.Status)

	_, err = f.carts.GetCart(ctx, cart.UserOwner(f.user.ID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "cart is cleared with the order")
	assert.Len(t, f.counts.owners, 1)
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderPaid}, f.eventTypes(t))
}

func TestCreateOrderProviderMethodsKeepCart(t *testing.T) {
	for _, method := range []enums.PaymentMethod{enums.PaymentMethodPayPal, enums.PaymentMethodStripe} {
		t.Run(method.String(), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.fillCart(t, 1, 1)

			id, err := f.svc.CreateOrder(ctx, f.input(method))
			require.NoError(t, err)

			order, err := f.svc.GetOrder(ctx, id)
			require.NoError(t, err)
			assert.False(t, order.IsPaid)
			assert.Equal(t, enums.PaymentStateCreated, order.PaymentState)
			assert.Nil(t, order.PaymentResult)

			remaining, err := f.carts.GetCart(ctx, cart.UserOwner(f.user.ID))
			require.NoError(t, err)
			assert.Len(t, remaining.Items, 1)
			assert.Empty(t, f.counts.owners)
			assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated}, f.eventTypes(t))
		})
	}
}

func TestCreateOrderRoundTripTotalsAreConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 3)
	f.fillCart(t, 2, 1)

	id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodStripe))
	require.NoError(t, err)

	order, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.TotalPrice, order.ItemsPrice+order.ShippingPrice+order.TaxPrice)

	var lines types.Money
	for _, item := range order.Items {
		lines += item.Price * types.Money(item.Qty)
	}
	assert.Equal(t, order.ItemsPrice, lines)
}

func TestCreateOrderSnapshotsItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)

	id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodPayPal))
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", 1).Updates(map[string]any{"price_cents": 99999, "name": "Renamed"}).Error)
	_, err = f.carts.UpdateQuantity(ctx, cart.UserOwner(f.user.ID), 1, 5)
	require.NoError(t, err)

	order, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, "XX99 Mark II Headphones", item.Name)
	assert.EqualValues(t, 10000, item.Price)
	assert.Equal(t, 1, item.Qty)
	assert.Equal(t, PlaceholderImage, item.Image)
}

func TestCreateOrderEMoneyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)

	in := f.input(enums.PaymentMethodEMoney)
	in.EMoneyNumber = "12345"
	_, err := f.svc.CreateOrder(ctx, in)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, "e-Money Number must be 9 digits", typed.Message())
	details := typed.Details().(map[string]string)
	assert.Contains(t, details, "eMoneyNumber")
	assert.Equal(t, "e-Money PIN is required", details["eMoneyPin"])
	assert.Zero(t, f.count(t, &models.Order{}))

	in.EMoneyNumber = "238 521 993"
	in.EMoneyPIN = "6891"
	id, err := f.svc.CreateOrder(ctx, in)
	require.NoError(t, err)

	var raw struct{ PaymentResult string }
	require.NoError(t, f.db.Table("orders").Select("payment_result").Where("id = ?", id).Scan(&raw).Error)
	assert.NotContains(t, raw.PaymentResult, "6891")

	order, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, order.IsPaid)
	assert.Equal(t, "*****1993", order.PaymentResult.Extra["eMoneyNumber"])
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)

	in := f.input("Bitcoin")
	_, err := f.svc.CreateOrder(ctx, in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	in = f.input(enums.PaymentMethodPayPal)
	in.ShippingAddress.City = " "
	_, err = f.svc.CreateOrder(ctx, in)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Contains(t, typed.Details().(map[string]string), "shippingAddress.city")

	in = f.input(enums.PaymentMethodPayPal)
	in.UserID = uuid.Nil
	_, err = f.svc.CreateOrder(ctx, in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestCreateOrderSavesAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)

	in := f.input(enums.PaymentMethodCashOnDelivery)
	in.SaveAddress = true
	_, err := f.svc.CreateOrder(ctx, in)
	require.NoError(t, err)

	saved, err := users.NewRepository(f.db).FindByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.Address)
	assert.Equal(t, "New York", saved.Address.City)
	require.NotNil(t, saved.PaymentMethod)
	assert.Equal(t, enums.PaymentMethodCashOnDelivery, *saved.PaymentMethod)
}

func TestMarkPaidTwiceKeepsFirstResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)
	id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodPayPal))
	require.NoError(t, err)

	first := types.PaymentResult{ID: "CAPTURE-1", Status: "COMPLETED", EmailAddress: "payer@example.com", PricePaid: "170.00"}
	paid, err := f.svc.MarkPaid(ctx, id, first)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)

	_, err = f.svc.MarkPaid(ctx, id, types.PaymentResult{ID: "CAPTURE-2", Status: "COMPLETED"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid))

	order, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "CAPTURE-1", order.PaymentResult.ID)
	assert.Equal(t, "payer@example.com", order.PaymentResult.EmailAddress)
	assert.True(t, fixedNow.Equal(*order.PaidAt))
}

func TestMarkPaidConcurrentCallersHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)
	id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodStripe))
	require.NoError(t, err)

	const callers = 5
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.MarkPaid(ctx, id, types.PaymentResult{ID: "pi_123", Status: "succeeded"})
		}(i)
	}
	wg.Wait()

	wins, already := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, already)

	var paidEvents int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderPaid).Count(&paidEvents).Error)
	assert.EqualValues(t, 1, paidEvents)
}

func TestMarkPaidUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkPaid(context.Background(), uuid.New(), types.PaymentResult{ID: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSetPendingPaymentOverwritesUntilPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)
	id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodPayPal))
	require.NoError(t, err)

	require.NoError(t, f.svc.SetPendingPayment(ctx, id, types.PaymentResult{ID: "PP-1"}))
	require.NoError(t, f.svc.SetPendingPayment(ctx, id, types.PaymentResult{ID: "PP-2"}))

	order, err := f.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "PP-2", order.PaymentResult.ID)
	assert.True(t, order.PaymentResult.IsPending())
	assert.Equal(t, enums.PaymentStateAwaitingPayment, order.PaymentState)
	assert.False(t, order.IsPaid)

	_, err = f.svc.MarkPaid(ctx, id, types.PaymentResult{ID: "PP-2", Status: "COMPLETED"})
	require.NoError(t, err)
	err = f.svc.SetPendingPayment(ctx, id, types.PaymentResult{ID: "PP-3"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid))

	err = f.svc.SetPendingPayment(ctx, uuid.New(), types.PaymentResult{ID: "PP-4"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestFindStripeOrderByIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)
	id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodStripe))
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPendingPayment(ctx, id, types.PaymentResult{ID: "pi_abc", Status: types.PaymentStatusPending}))

	found, err := f.svc.FindStripeOrderByIntent(ctx, "pi_abc", &f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	found, err = f.svc.FindStripeOrderByIntent(ctx, "pi_abc", nil)
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	stranger := uuid.New()
	_, err = f.svc.FindStripeOrderByIntent(ctx, "pi_abc", &stranger)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetOrderForUserHidesOtherUsersOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)
	id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodCashOnDelivery))
	require.NoError(t, err)

	order, err := f.svc.GetOrderForUser(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, id, order.ID)

	_, err = f.svc.GetOrderForUser(ctx, id, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListOrdersForUserPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.fillCart(t, 1, 1)
		id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodCashOnDelivery))
		require.NoError(t, err)
		created := fixedNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", id).Update("created_at", created).Error)
	}

	page, err := f.svc.ListOrdersForUser(ctx, f.user.ID, HistoryPage{Size: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.True(t, page.Orders[0].CreatedAt.After(page.Orders[1].CreatedAt))

	rest, err := f.svc.ListOrdersForUser(ctx, f.user.ID, HistoryPage{Size: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.Empty(t, rest.NextCursor)
	assert.True(t, rest.Orders[0].CreatedAt.Before(page.Orders[1].CreatedAt))

	_, err = f.svc.ListOrdersForUser(ctx, uuid.New(), HistoryPage{Cursor: page.NextCursor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.ListOrdersForUser(ctx, f.user.ID, HistoryPage{Cursor: "not+a/cursor"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMarkDeliveredRequiresPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, 1, 1)
	id, err := f.svc.CreateOrder(ctx, f.input(enums.PaymentMethodPayPal))
	require.NoError(t, err)

	_, err = f.svc.MarkDelivered(ctx, id)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.MarkPaid(ctx, id, types.PaymentResult{ID: "CAP", Status: "COMPLETED"})
	require.NoError(t, err)

	order, err := f.svc.MarkDelivered(ctx, id)
	require.NoError(t, err)
	assert.True(t, order.IsDelivered)
	require.NotNil(t, order.DeliveredAt)

	_, err = f.svc.MarkDelivered(ctx, id)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestOrderJSONUsesDecimalAmounts(t *testing.T) {
	order := FromModel(&models.Order{ItemsPriceCents: 20000, ShippingPriceCents: 5000, TaxPriceCents: 4000, TotalPriceCents: 29000})
	raw, err := json.Marshal(order)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 290, decoded["totalPrice"])
	assert.EqualValues(t, 50, decoded["shippingPrice"])
	assert.Equal(t, []any{}, decoded["orderItems"])
}

func TestHistoryPageSizeBounds(t *testing.T) {
	assert.Equal(t, DefaultHistoryPageSize, HistoryPage{}.size())
	assert.Equal(t, MaxHistoryPageSize, HistoryPage{Size: 500}.size())
	assert.Equal(t, 7, HistoryPage{Size: 7}.size())
}

type badgeCounts struct {
	mu   sync.Mutex
	data map[string]string
}

func (b *badgeCounts) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (b *badgeCounts) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = fmt.Sprint(value)
	return nil
}

func (b *badgeCounts) Del(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.data, k)
	}
	return nil
}

func (b *badgeCounts) CartCountKey(ownerKey string) string { return "cart-count:" + ownerKey }

func TestCartServiceDropsTheBadgeCountWhenAnOrderSettles(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedProduct(t, db, 1, "XX99 Mark II Headphones", 10000)
	user := dbtest.SeedUser(t, db, "badge@example.com")
	tx := dbpkg.NewFromConn(db)
	store := &badgeCounts{data: map[string]string{}}
	carts, err := cart.NewService(cart.ServiceParams{
		Repo:     cart.NewRepository(db),
		Tx:       tx,
		Products: products.NewRepository(db),
		Counts:   cart.NewRedisCountCache(store, time.Hour),
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(db),
		Carts:  cart.NewRepository(db),
		Users:  users.NewRepository(db),
		Tx:     tx,
		Outbox: outbox.NewEmitter(outbox.NewRepository(db), nil),
		Counts: carts,
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	ctx := context.Background()
	owner := cart.UserOwner(user.ID)
	_, err = carts.AddItem(ctx, owner, cart.AddItemInput{ProductID: 1, Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, 3, carts.ItemCount(ctx, owner))
	require.NotEmpty(t, store.data)

	f := fixture{user: user}
	_, err = svc.CreateOrder(ctx, f.input(enums.PaymentMethodCashOnDelivery))
	require.NoError(t, err)
	assert.Empty(t, store.data)
	assert.Zero(t, carts.ItemCount(ctx, owner))
}

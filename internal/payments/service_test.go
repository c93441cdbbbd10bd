package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/internal/products"
	"github.com/angelmondragon/audiophile-backend/internal/users"
	dbpkg "github.com/angelmondragon/audiophile-backend/pkg/db"
	"github.com/angelmondragon/audiophile-backend/pkg/db/dbtest"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/metrics"
	"github.com/angelmondragon/audiophile-backend/pkg/outbox"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

type fakePayPal struct {
	mu        sync.Mutex
	created   int
	createErr error
	// capture overrides, keyed by provider order id
	captures map[string]*Capture
}

func (f *fakePayPal) CreateOrder(_ context.Context, amountCents int64, currency, referenceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	id := fmt.Sprintf("PAYPAL-%d", f.created)
	if f.captures == nil {
		f.captures = map[string]*Capture{}
	}
	if _, ok := f.captures[id]; !ok {
		f.captures[id] = &Capture{
			OrderID:     id,
			CaptureID:   "CAP-" + id,
			Status:      paypalStatusCompleted,
			PayerEmail:  "payer@paypal.test",
			AmountCents: amountCents,
		}
	}
	return id, nil
}

func (f *fakePayPal) CaptureOrder(_ context.Context, providerOrderID string) (*Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	capture, ok := f.captures[providerOrderID]
	if !ok {
		return nil, providerError("paypal", "capture order", errors.New("RESOURCE_NOT_FOUND"))
	}
	out := *capture
	return &out, nil
}

type fakeStripe struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	retrieve int
}

func (f *fakeStripe) CreatePaymentIntent(_ context.Context, amountCents int64, currency, orderID string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.intents == nil {
		f.intents = map[string]*Intent{}
	}
	id := fmt.Sprintf("pi_%d", len(f.intents)+1)
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_test",
		Status:       "requires_payment_method",
		AmountCents:  amountCents,
		Currency:     currency,
		OrderID:      orderID,
	}
	f.intents[id] = intent
	out := *intent
	return &out, nil
}

func (f *fakeStripe) RetrievePaymentIntent(_ context.Context, intentID string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieve++
	intent, ok := f.intents[intentID]
	if !ok {
		return nil, providerError("stripe", "retrieve payment intent", errors.New("no such payment_intent"))
	}
	out := *intent
	return &out, nil
}

func (f *fakeStripe) succeed(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Status = stripeStatusSucceeded
}

type recordingInvalidator struct {
	mu     sync.Mutex
	owners []cart.Owner
}

func (r *recordingInvalidator) InvalidateCount(_ context.Context, owners ...cart.Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, owners...)
}

func (r *recordingInvalidator) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

type fixture struct {
	db       *gorm.DB
	orders   orders.Service
	carts    cart.Service
	svc      Service
	paypal   *fakePayPal
	stripe   *fakeStripe
	counts   *recordingInvalidator
	registry *prometheus.Registry
	logs     *bytes.Buffer
	user     models.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.SeedProduct(t, db, 1, "XX99 Mark II Headphones", 10000)
	user := dbtest.SeedUser(t, db, "buyer@example.com")

	tx := dbpkg.NewFromConn(db)
	carts, err := cart.NewService(cart.ServiceParams{
		Repo:     cart.NewRepository(db),
		Tx:       tx,
		Products: products.NewRepository(db),
	})
	require.NoError(t, err)

	ledger, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(db),
		Carts:  cart.NewRepository(db),
		Users:  users.NewRepository(db),
		Tx:     tx,
		Outbox: outbox.NewEmitter(outbox.NewRepository(db), nil),
	})
	require.NoError(t, err)

	f := fixture{
		db:       db,
		orders:   ledger,
		carts:    carts,
		paypal:   &fakePayPal{},
		stripe:   &fakeStripe{},
		counts:   &recordingInvalidator{},
		registry: prometheus.NewRegistry(),
		logs:     &bytes.Buffer{},
		user:     user,
	}
	f.svc, err = NewService(ServiceParams{
		Orders:  ledger,
		Carts:   cart.NewRepository(db),
		Tx:      tx,
		PayPal:  f.paypal,
		Stripe:  f.stripe,
		Counts:  f.counts,
		Metrics: metrics.NewPaymentMetrics(f.registry),
		Logger:  logger.New(logger.Options{ServiceName: "payments-test", Output: f.logs}),
	})
	require.NoError(t, err)
	return f
}

// placeOrder fills the cart with 2 x 100.00 and checks out; total is 290.00.
func (f fixture) placeOrder(t *testing.T, method enums.PaymentMethod) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, cart.UserOwner(f.user.ID), cart.AddItemInput{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	id, err := f.orders.CreateOrder(ctx, orders.CreateOrderInput{
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
	})
	require.NoError(t, err)
	return id
}

func (f fixture) cartExists(t *testing.T) bool {
	t.Helper()
	c, err := cart.NewRepository(f.db).FindByOwner(context.Background(), cart.UserOwner(f.user.ID), false)
	require.NoError(t, err)
	return c != nil
}

func (f fixture) paidEvents(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderPaid).Count(&n).Error)
	return n
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCreatePayPalOrderStoresPendingResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodPayPal)

	providerID, err := f.svc.CreatePayPalOrder(ctx, f.user.ID, orderID)
	require.NoError(t, err)
	assert.Equal(t, "PAYPAL-1", providerID)

	order, err := f.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, order.PaymentResult)
	assert.Equal(t, providerID, order.PaymentResult.ID)
	assert.Empty(t, order.PaymentResult.Status)
	assert.Empty(t, order.PaymentResult.EmailAddress)
	assert.False(t, order.IsPaid)
	assert.Equal(t, enums.PaymentStateAwaitingPayment, order.PaymentState)
	assert.True(t, f.cartExists(t))

	// a retry replaces the pending attempt
	retryID, err := f.svc.CreatePayPalOrder(ctx, f.user.ID, orderID)
	require.NoError(t, err)
	order, err = f.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, retryID, order.PaymentResult.ID)
}

func TestApprovePayPalOrderSettlesAndClearsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodPayPal)
	providerID, err := f.svc.CreatePayPalOrder(ctx, f.user.ID, orderID)
	require.NoError(t, err)

	order, err := f.svc.ApprovePayPalOrder(ctx, f.user.ID, orderID, providerID)
	require.NoError(t, err)
	assert.True(t, order.IsPaid)
	assert.Equal(t, enums.PaymentStatePaid, order.PaymentState)
	require.NotNil(t, order.PaymentResult)
	assert.Equal(t, providerID, order.PaymentResult.ID)
	assert.Equal(t, paypalStatusCompleted, order.PaymentResult.Status)
	assert.Equal(t, "payer@paypal.test", order.PaymentResult.EmailAddress)
	assert.Equal(t, "290.00", order.PaymentResult.PricePaid)
	assert.Equal(t, "CAP-"+providerID, order.PaymentResult.Extra["captureId"])

	assert.False(t, f.cartExists(t))
	assert.Equal(t, 1, f.counts.len())
	assert.Equal(t, int64(1), f.paidEvents(t))
	assert.Equal(t, float64(1), f.settledCount(t, "paypal", metrics.OutcomeSuccess))

	_, err = f.svc.ApprovePayPalOrder(ctx, f.user.ID, orderID, providerID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid))
	assert.Equal(t, int64(1), f.paidEvents(t))
}

func TestApprovePayPalOrderRejectsMismatchedID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodPayPal)
	_, err := f.svc.CreatePayPalOrder(ctx, f.user.ID, orderID)
	require.NoError(t, err)

	_, err = f.svc.ApprovePayPalOrder(ctx, f.user.ID, orderID, "PAYPAL-OTHER")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentMismatch))

	order, err := f.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, order.IsPaid)
	assert.True(t, f.cartExists(t))
	assert.Zero(t, f.paidEvents(t))
}

func TestApprovePayPalOrderRejectsForeignCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodPayPal)
	providerID, err := f.svc.CreatePayPalOrder(ctx, f.user.ID, orderID)
	require.NoError(t, err)
	f.paypal.captures[providerID].OrderID = "PAYPAL-ELSEWHERE"

	_, err = f.svc.ApprovePayPalOrder(ctx, f.user.ID, orderID, providerID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentMismatch))

	order, err := f.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, order.IsPaid)
}

func TestApprovePayPalOrderRequiresCompletedCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodPayPal)
	providerID, err := f.svc.CreatePayPalOrder(ctx, f.user.ID, orderID)
	require.NoError(t, err)
	f.paypal.captures[providerID].Status = "PENDING"

	_, err = f.svc.ApprovePayPalOrder(ctx, f.user.ID, orderID, providerID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentIncomplete))
	assert.Equal(t, float64(1), f.settledCount(t, "paypal", metrics.OutcomeRejected))

	f.paypal.captures[providerID].Status = paypalStatusCompleted
	f.paypal.captures[providerID].AmountCents = 100
	_, err = f.svc.ApprovePayPalOrder(ctx, f.user.ID, orderID, providerID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentMismatch))
}

func TestApprovePayPalOrderLogsRejectedCaptureForReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodPayPal)
	providerID, err := f.svc.CreatePayPalOrder(ctx, f.user.ID, orderID)
	require.NoError(t, err)
	f.paypal.captures[providerID].AmountCents = 100

	_, err = f.svc.ApprovePayPalOrder(ctx, f.user.ID, orderID, providerID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentMismatch))

	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(f.logs.Bytes()), []byte("\n")) {
		candidate := map[string]any{}
		require.NoError(t, json.Unmarshal(line, &candidate))
		if candidate["message"] == "paypal captured amount differs from order total" {
			entry = candidate
		}
	}
	require.NotNil(t, entry, f.logs.String())
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, orderID.String(), entry["order_id"])
	assert.Equal(t, providerID, entry["paypal_order_id"])
	assert.Equal(t, "CAP-"+providerID, entry["capture_id"])
	assert.Equal(t, float64(100), entry["captured_amount_cents"])
	assert.Equal(t, float64(29000), entry["order_total_cents"])
}

func TestCreatePayPalOrderProviderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodPayPal)
	f.paypal.createErr = errors.New("INTERNAL_SERVICE_ERROR")

	_, err := f.svc.CreatePayPalOrder(ctx, f.user.ID, orderID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentProvider))
	assert.Contains(t, err.Error(), "INTERNAL_SERVICE_ERROR")

	order, err := f.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Nil(t, order.PaymentResult)
}

func TestProviderFlowsRejectWrongMethodAndOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodStripe)

	_, err := f.svc.CreatePayPalOrder(ctx, f.user.ID, orderID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreatePaymentIntent(ctx, uuid.New(), orderID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreatePaymentIntentStoresPendingResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodStripe)

	intent, err := f.svc.CreatePaymentIntent(ctx, f.user.ID, orderID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "pi_1_secret_test", intent.ClientSecret)
	assert.Equal(t, int64(29000), intent.Amount.Cents())

	order, err := f.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, order.PaymentResult)
	assert.Equal(t, "pi_1", order.PaymentResult.ID)
	assert.Equal(t, types.PaymentStatusPending, order.PaymentResult.Status)
	assert.NotContains(t, fmt.Sprint(order.PaymentResult.Extra), "secret")
	assert.False(t, order.IsPaid)
}

func TestCompleteStripePaymentTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodStripe)
	intent, err := f.svc.CreatePaymentIntent(ctx, f.user.ID, orderID)
	require.NoError(t, err)
	f.stripe.succeed(intent.ID)

	input := CompleteStripeInput{UserID: &f.user.ID, OrderID: &orderID, PaymentIntentID: intent.ID}
	first, err := f.svc.CompleteStripePayment(ctx, input)
	require.NoError(t, err)
	assert.True(t, first.IsPaid)
	assert.Equal(t, stripeStatusSucceeded, first.PaymentResult.Status)
	assert.Equal(t, "alexei@mail.com", first.PaymentResult.EmailAddress)
	assert.False(t, f.cartExists(t))

	second, err := f.svc.CompleteStripePayment(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsPaid)
	assert.Equal(t, first.PaidAt.Unix(), second.PaidAt.Unix())

	assert.Equal(t, 1, f.counts.len())
	assert.Equal(t, int64(1), f.paidEvents(t))
	assert.Equal(t, 1, f.stripe.retrieve)
	assert.Equal(t, float64(1), f.settledCount(t, "stripe", metrics.OutcomeIdempotent))
}

func TestCompleteStripePaymentConcurrentCallersBothSucceed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodStripe)
	intent, err := f.svc.CreatePaymentIntent(ctx, f.user.ID, orderID)
	require.NoError(t, err)
	f.stripe.succeed(intent.ID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// one caller is the webhook, which carries no user
			in := CompleteStripeInput{OrderID: &orderID, PaymentIntentID: intent.ID}
			if i == 0 {
				in.UserID = &f.user.ID
			}
			_, errs[i] = f.svc.CompleteStripePayment(ctx, in)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), f.paidEvents(t))
}

func TestCompleteStripePaymentByIntentLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodStripe)
	intent, err := f.svc.CreatePaymentIntent(ctx, f.user.ID, orderID)
	require.NoError(t, err)
	f.stripe.succeed(intent.ID)

	order, err := f.svc.CompleteStripePayment(ctx, CompleteStripeInput{
		UserID:          &f.user.ID,
		PaymentIntentID: intent.ID,
		Email:           "receipt@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, "receipt@example.com", order.PaymentResult.EmailAddress)
}

func TestCompleteStripePaymentRejectsUnsettledIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.placeOrder(t, enums.PaymentMethodStripe)
	intent, err := f.svc.CreatePaymentIntent(ctx, f.user.ID, orderID)
	require.NoError(t, err)

	input := CompleteStripeInput{UserID: &f.user.ID, OrderID: &orderID, PaymentIntentID: intent.ID}
	_, err = f.svc.CompleteStripePayment(ctx, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentIncomplete))

	_, err = f.svc.CompleteStripePayment(ctx, CompleteStripeInput{UserID: &f.user.ID, OrderID: &orderID, PaymentIntentID: "pi_other"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentMismatch))

	_, err = f.svc.CompleteStripePayment(ctx, CompleteStripeInput{UserID: &f.user.ID, OrderID: &orderID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	order, err := f.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, order.IsPaid)
	assert.True(t, f.cartExists(t))
}

// settledCount reads orders_settled_total for one provider and outcome.
func (f fixture) settledCount(t *testing.T, provider, outcome string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "orders_settled_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["provider"] == provider && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/audiophile-backend/api/middleware"
	"github.com/angelmondragon/audiophile-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/audiophile-backend/internal/checkout"
	"github.com/angelmondragon/audiophile-backend/internal/orders"
	"github.com/angelmondragon/audiophile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
)

type stubCheckoutService struct {
	entry       *checkoutsvc.EntryResult
	submitted   *checkoutsvc.SubmitInput
	identity    *checkoutsvc.Identity
	finishOwner *cart.Owner
	order       *orders.Order
}

func (s *stubCheckoutService) Entry(ctx context.Context, identity *checkoutsvc.Identity) (*checkoutsvc.EntryResult, error) {
	s.identity = identity
	if identity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to continue to checkout").
			WithDetails(map[string]string{"redirect_to": "/sign-in?callbackUrl=/checkout"})
	}
	return s.entry, nil
}

func (s *stubCheckoutService) Submit(ctx context.Context, identity *checkoutsvc.Identity, input checkoutsvc.SubmitInput) (*checkoutsvc.SubmitResult, error) {
	s.identity = identity
	s.submitted = &input
	return &checkoutsvc.SubmitResult{
		OrderID:       uuid.New(),
		PaymentMethod: input.PaymentMethod,
		NextStep:      checkoutsvc.NextStepPayPalApproval,
	}, nil
}

func (s *stubCheckoutService) Confirmation(ctx context.Context, identity *checkoutsvc.Identity, orderID uuid.UUID) (*orders.Order, error) {
	return s.order, nil
}

func (s *stubCheckoutService) Finish(ctx context.Context, owner cart.Owner) error {
	s.finishOwner = &owner
	return nil
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func withUser(r *http.Request, id uuid.UUID) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), id.String()))
}

func withParam(r *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func TestCheckoutEntryRedirectsAnonymousCaller(t *testing.T) {
	svc := &stubCheckoutService{}
	resp := httptest.NewRecorder()
	CheckoutEntry(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/checkout", nil))

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, string(pkgerrors.CodeUnauthorized), body.Error.Code)
	assert.Equal(t, "/sign-in?callbackUrl=/checkout", body.Error.Details["redirect_to"])
	assert.Nil(t, svc.identity)
}

func TestCheckoutEntryPassesIdentity(t *testing.T) {
	userID := uuid.New()
	svc := &stubCheckoutService{entry: &checkoutsvc.EntryResult{Summary: checkoutsvc.Summary{TotalPrice: 29000}}}
	resp := httptest.NewRecorder()
	CheckoutEntry(svc, nil).ServeHTTP(resp, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/checkout", nil), userID))

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.identity)
	assert.Equal(t, userID, svc.identity.UserID)
	assert.Contains(t, resp.Body.String(), `"totalPrice":290.00`)
}

func TestCheckoutSubmitDecodesForm(t *testing.T) {
	svc := &stubCheckoutService{}
	body := `{"shippingAddress":{"fullName":"Ada Lovelace","email":"ada@example.com","phone":"5125550100","address":"1 Loop Rd","zipCode":"78701","city":"Austin","country":"US"},"paymentMethod":"PayPal"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	CheckoutSubmit(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, svc.submitted)
	assert.Equal(t, enums.PaymentMethodPayPal, svc.submitted.PaymentMethod)
	assert.Contains(t, resp.Body.String(), `"nextStep":"paypal_approval"`)
}

func TestCheckoutSubmitRejectsMissingMethod(t *testing.T) {
	svc := &stubCheckoutService{}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"shippingAddress":{}}`)), uuid.New())
	resp := httptest.NewRecorder()
	CheckoutSubmit(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, svc.submitted)
}

func TestCheckoutConfirmationRejectsBadOrderID(t *testing.T) {
	svc := &stubCheckoutService{}
	req := withParam(withUser(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()), "orderId", "nope")
	resp := httptest.NewRecorder()
	CheckoutConfirmation(svc, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCheckoutFinishUsesSessionCartForAnonymousCaller(t *testing.T) {
	svc := &stubCheckoutService{}
	sessionID := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/finish", nil)
	req = req.WithContext(middleware.WithSessionCartID(req.Context(), sessionID))
	resp := httptest.NewRecorder()
	CheckoutFinish(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.finishOwner)
	assert.False(t, svc.finishOwner.IsUser())
	assert.Equal(t, sessionID, svc.finishOwner.SessionID)
}

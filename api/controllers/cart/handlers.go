package cart

import (
	"net/http"

	"github.com/angelmondragon/audiophile-backend/api/controllers"
	"github.com/angelmondragon/audiophile-backend/api/responses"
	"github.com/angelmondragon/audiophile-backend/api/validators"
	cartsvc "github.com/angelmondragon/audiophile-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/logger"
	"github.com/angelmondragon/audiophile-backend/pkg/types"
)

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=99"`
}

type countResponse struct {
	Count int `json:"count"`
}

// CartFetch returns the caller's cart. A caller without a cart gets an empty
// one rather than a 404.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		record, err := svc.GetCart(r.Context(), controllers.CartOwner(r))
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			responses.WriteSuccess(w, emptyCart())
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, record)
	}
}

// CartCount feeds the header badge. It never fails.
func CartCount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteSuccess(w, countResponse{})
			return
		}
		responses.WriteSuccess(w, countResponse{Count: svc.ItemCount(r.Context(), controllers.CartOwner(r))})
	}
}

// CartAddItem adds a product to the caller's cart, creating the cart on
// first use.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload cartsvc.AddItemInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.AddItem(r.Context(), controllers.CartOwner(r), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, record)
	}
}

// CartUpdateItem sets a line quantity. Zero removes the line.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		productID, err := validators.ProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.UpdateQuantity(r.Context(), controllers.CartOwner(r), productID, *payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if record == nil {
			record = emptyCart()
		}

		responses.WriteSuccess(w, record)
	}
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		if err := svc.Clear(r.Context(), controllers.CartOwner(r)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, emptyCart())
	}
}

func emptyCart() *cartsvc.Cart {
	return &cartsvc.Cart{Items: []cartsvc.Item{}, ItemsPrice: types.Money(0), TotalPrice: types.Money(0)}
}

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
)

type address struct {
	City string `json:"city" validate:"required"`
}

type form struct {
	Email   string  `json:"email" validate:"required,email"`
	PIN     string  `json:"pin" validate:"omitempty,len=4,numeric"`
	Address address `json:"shippingAddress"`
}

func TestStructReportsJSONPaths(t *testing.T) {
	err := Struct(&form{Email: "nope", PIN: "12a4x"})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Equal(t, "must be exactly 4 characters", details["pin"])
	assert.Equal(t, "is required", details["shippingAddress.city"])
}

func TestStructPasses(t *testing.T) {
	assert.NoError(t, Struct(&form{Email: "a@b.co", PIN: "1234", Address: address{City: "Lagos"}}))
}

func TestVarNamesTheParameter(t *testing.T) {
	err := Var("limit", 80, "min=1,max=50")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, map[string]string{"limit": "must be at most 50"}, typed.Details())

	assert.NoError(t, Var("limit", 20, "min=1,max=50"))
}

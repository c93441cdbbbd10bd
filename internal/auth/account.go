package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/audiophile-backend/internal/cart"
	"github.com/angelmondragon/audiophile-backend/internal/users"
	"github.com/angelmondragon/audiophile-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/validation"
)

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (*users.UserDTO, error) {
	user, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}
	return users.FromModel(user), nil
}

// UpdateProfile renames the account and optionally moves its email.
func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*users.UserDTO, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Email != nil {
		normalized := users.NormalizeEmail(*req.Email)
		req.Email = &normalized
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	user, err := s.users.UpdateProfile(ctx, userID, req.Name, req.Email)
	if err != nil {
		return nil, accountError(err, "update profile")
	}
	return users.FromModel(user), nil
}

// ChangePassword re-hashes the password once the current one checks out.
// The session in use stays valid.
func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	user, err := s.account(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.confirmPassword(user, req.CurrentPassword, "currentPassword"); err != nil {
		return err
	}
	hash, err := s.passwords.Hash(req.NewPassword)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return accountError(err, "update password")
	}
	return nil
}

// DeleteAccount closes the account after a password check, drops its cart
// and ends the current session. Orders stay on the ledger.
func (s *service) DeleteAccount(ctx context.Context, userID uuid.UUID, accessID string, req DeleteAccountRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	user, err := s.account(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.confirmPassword(user, req.Password, "password"); err != nil {
		return err
	}
	if s.carts != nil {
		if err := s.carts.Clear(ctx, cart.UserOwner(user.ID)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}
	}
	if err := s.users.CloseAccount(ctx, user.ID); err != nil {
		return accountError(err, "close account")
	}
	if strings.TrimSpace(accessID) != "" {
		if err := s.sessions.Revoke(ctx, accessID); err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithUserID(ctx, user.ID.String()), "revoke session after account closure", err)
		}
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "account closed")
	}
	return nil
}

// EmailExists lets the sign-up form flag a taken email before submitting.
func (s *service) EmailExists(ctx context.Context, req EmailCheckRequest) (*EmailCheckResponse, error) {
	req.Email = users.NormalizeEmail(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	taken, err := s.users.EmailTaken(ctx, req.Email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup email")
	}
	return &EmailCheckResponse{Exists: taken}, nil
}

func (s *service) account(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, accountError(err, "lookup user")
	}
	return user, nil
}

// confirmPassword reports a wrong password against the named form field so
// the account page can show it inline.
func (s *service) confirmPassword(user *models.User, password, field string) error {
	valid, err := s.passwords.Verify(password, user.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return pkgerrors.New(pkgerrors.CodeValidation, "password is incorrect").
			WithDetails(map[string]string{field: "is incorrect"})
	}
	return nil
}

func accountError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}

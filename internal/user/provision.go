package user

import (
	"context"
	"fmt"

	"github.com/softspot/proximity/internal/auth"
	"github.com/softspot/proximity/internal/validate"
)

// Provision upserts one enabled user with a freshly hashed password.
// Safe to run on every startup.
func Provision(ctx context.Context, store Store, userID, password string) error {
	if err := validate.UserID(userID); err != nil {
		return fmt.Errorf("provision %s: %w", userID, err)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password for %s: %w", userID, err)
	}
	return store.Upsert(ctx, &User{UserID: userID, HashedPassword: hashed})
}

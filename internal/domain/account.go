package domain

import (
	"context"
	"time"
)

// Account is a user identity record
type Account struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Username     string    `bson:"username" json:"username"`
	PasswordHash string    `bson:"password_hash" json:"-"` // never expose
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

// AccountView is the public projection of an account
type AccountView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TransformAccount projects an account for external use. The password hash
// does not survive this call.
func TransformAccount(a *Account) AccountView {
	return AccountView{
		ID:        a.ID,
		Username:  a.Username,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// AccountRepository defines the account store
type AccountRepository interface {
	// Create inserts a new account, returning ErrDuplicateUsername if taken
	Create(ctx context.Context, account *Account) error

	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
}

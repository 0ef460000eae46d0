package user

import "context"

type Repository interface {
	FindByID(ctx context.Context, id int) (*User, error)
	// SoftDelete sets deleted_at once. Calling it again for a deleted user
	// returns the user unchanged so cleanup can be retried.
	SoftDelete(ctx context.Context, id int) (*User, error)
}

package loan

import "context"

// Repository is the read side of the off-chain loan store
type Repository interface {
	ListActive(ctx context.Context) ([]*Loan, error)
	// GetByID returns errors.ErrNotFound when the loan does not exist
	GetByID(ctx context.Context, id int64) (*Loan, error)
}

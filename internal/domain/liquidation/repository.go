package liquidation

import "context"

// Repository stores the liquidation audit log
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
}

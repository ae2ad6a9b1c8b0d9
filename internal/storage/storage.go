package storage

import (
	"context"

	"swapwatch/internal/model"
)

// Sink receives every emitted swap.
type Sink interface {
	Append(ctx context.Context, swap model.NormalizedSwap) error
}

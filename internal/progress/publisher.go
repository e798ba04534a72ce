// Package progress fans batch snapshots out to observers.
package progress

import (
	"context"
	"errors"

	"github.com/sells-group/valuation-cli/internal/model"
)

// Publisher receives a snapshot after every batch update.
type Publisher interface {
	Publish(ctx context.Context, snap model.BatchSnapshot) error
}

// Multi publishes to every publisher in order. All publishers are attempted
// even when one fails.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, snap model.BatchSnapshot) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, snap model.BatchSnapshot) error

func (f Func) Publish(ctx context.Context, snap model.BatchSnapshot) error {
	return f(ctx, snap)
}

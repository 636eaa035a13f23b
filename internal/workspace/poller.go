package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// pollFunc fetches the current resource, its provisioning state, and the
// platform's failure message when there is one.
type pollFunc[T any] func(ctx context.Context) (*T, models.ProvisioningState, string, error)

// Poller blocks on a long-running platform operation. It is the single
// wait primitive in this module: create calls return immediately with a
// Poller, and Wait polls the resource until a terminal state.
type Poller[T any] struct {
	describe string
	interval time.Duration
	poll     pollFunc[T]
}

func newPoller[T any](describe string, interval time.Duration, poll pollFunc[T]) *Poller[T] {
	return &Poller[T]{describe: describe, interval: interval, poll: poll}
}

// Wait polls until the resource reaches a terminal provisioning state.
// A Failed state surfaces the platform's message as an error; context
// cancellation aborts the wait, not the remote operation.
func (p *Poller[T]) Wait(ctx context.Context) (*T, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		resource, state, message, err := p.poll(ctx)
		if err != nil {
			return nil, fmt.Errorf("polling %s: %w", p.describe, err)
		}

		switch state {
		case models.ProvisioningSucceeded:
			return resource, nil
		case models.ProvisioningFailed:
			if message == "" {
				message = "provisioning failed"
			}
			return nil, fmt.Errorf("%s: %s", p.describe, message)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Package worker runs the periodic reconciliation jobs.
package worker

import "context"

// Job is one reconciliation pass. Run reports how many rows it changed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

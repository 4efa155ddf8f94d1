package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/voidKandy/espionox-sub001/internal/memory"
)

// DefaultMaintenanceSchedule runs store maintenance at the top of every hour.
const DefaultMaintenanceSchedule = "0 * * * *"

// StoreMaintenanceJob calls Maintain on every registered store. Stores are
// keyed by module ID; a failing store does not stop the others.
type StoreMaintenanceJob struct {
	Stores       map[string]memory.Maintainer
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultMaintenanceSchedule
}

// Compile-time interface check.
var _ Job = (*StoreMaintenanceJob)(nil)

// Name implements Job.
func (j *StoreMaintenanceJob) Name() string { return "store_maintenance" }

// Schedule implements Job.
func (j *StoreMaintenanceJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultMaintenanceSchedule
}

// Run maintains each store in module ID order.
func (j *StoreMaintenanceJob) Run(ctx context.Context) error {
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	for _, id := range slices.Sorted(maps.Keys(j.Stores)) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cron: store maintenance cancelled: %w", err)
		}
		start := time.Now()
		if err := j.Stores[id].Maintain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		logger.Debug("cron: store maintained", "store", id, "duration", time.Since(start))
	}
	return errors.Join(errs...)
}

// MaintainersOf returns the stores that support maintenance, keyed by
// module ID.
func MaintainersOf(stores map[string]memory.Store) map[string]memory.Maintainer {
	out := make(map[string]memory.Maintainer)
	for id, s := range stores {
		if m, ok := s.(memory.Maintainer); ok {
			out[id] = m
		}
	}
	return out
}

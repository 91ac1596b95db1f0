package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bastionhq/bastion/internal/domain"
)

// DefaultApplyTimeout bounds one applier call. A timed-out target counts
// as "not intercepted this cycle"; it gets another chance next tick.
const DefaultApplyTimeout = 2 * time.Second

// maxApplyConcurrency bounds the per-tick fan-out.
const maxApplyConcurrency = 8

// EnforcementDriver implements domain.Enforcer. Targets within one tick
// are independent, so applier calls fan out concurrently, but the result
// set is only finalized once every call has returned or timed out.
type EnforcementDriver struct {
	appliers map[domain.TargetKind]domain.BlockApplier
	clock    domain.Clock
	timeout  time.Duration
	logger   *zap.Logger
}

// NewEnforcementDriver creates a driver routing each target kind to its
// applier. A nil applier disables that kind.
func NewEnforcementDriver(
	siteApplier domain.BlockApplier,
	appApplier domain.BlockApplier,
	clock domain.Clock,
	timeout time.Duration,
	logger *zap.Logger,
) *EnforcementDriver {
	if timeout <= 0 {
		timeout = DefaultApplyTimeout
	}
	appliers := make(map[domain.TargetKind]domain.BlockApplier)
	if siteApplier != nil {
		appliers[domain.KindSite] = siteApplier
	}
	if appApplier != nil {
		appliers[domain.KindApplication] = appApplier
	}
	return &EnforcementDriver{
		appliers: appliers,
		clock:    clock,
		timeout:  timeout,
		logger:   logger,
	}
}

// Enforce applies the block action once per target and returns the subset
// actually intercepted this cycle. Individual failures are swallowed; the
// target is simply absent from the result.
func (d *EnforcementDriver) Enforce(ctx context.Context, targets []domain.BlockTarget) []domain.InterceptEvent {
	if len(targets) == 0 {
		return nil
	}

	intercepted := make([]bool, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxApplyConcurrency)

	for i, target := range targets {
		i, target := i, target
		applier, ok := d.appliers[target.Kind]
		if !ok {
			continue
		}

		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, d.timeout)
			defer cancel()

			hit, err := applier.Apply(callCtx, target)
			if err != nil {
				d.logger.Debug("block apply failed",
					zap.String("target", target.Identifier),
					zap.String("kind", string(target.Kind)),
					zap.Error(err))
				return nil
			}
			intercepted[i] = hit
			return nil
		})
	}

	// Appliers never propagate errors; Wait only synchronizes the fan-out.
	_ = g.Wait()

	now := d.clock.Now()
	var events []domain.InterceptEvent
	for i, hit := range intercepted {
		if hit {
			events = append(events, domain.InterceptEvent{
				Target: targets[i].Identifier,
				Kind:   targets[i].Kind,
				At:     now,
			})
		}
	}
	return events
}

// Ensure EnforcementDriver implements domain.Enforcer.
var _ domain.Enforcer = (*EnforcementDriver)(nil)

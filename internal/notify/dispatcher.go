package notify

import (
	"context"
	"log/slog"

	"fieldwatch/internal/types"
)

// TargetStore abstracts the delivery target persistence the dispatcher needs.
type TargetStore interface {
	ListByOwner(ctx context.Context, ownerID string) ([]types.DeliveryTarget, error)
	Delete(ctx context.Context, targetID string) error
}

// PushSender sends one alert notification to one delivery target.
type PushSender interface {
	Send(ctx context.Context, target types.DeliveryTarget, alert *types.Alert) error
}

// Dispatcher fans a created alert out to the owner's delivery targets.
type Dispatcher struct {
	targets TargetStore
	sender  PushSender
	logger  *slog.Logger
}

// DispatcherConfig holds the configuration for creating a Dispatcher.
type DispatcherConfig struct {
	Targets TargetStore
	Sender  PushSender
	Logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		targets: cfg.Targets,
		sender:  cfg.Sender,
		logger:  logger,
	}
}

// Dispatch sends the alert to every target registered for its owner and
// reports per-target outcomes. The alert already exists by the time this
// runs, so delivery failures are recorded and dropped, never retried and
// never propagated: a target reported permanently gone is pruned from the
// store, transient failures are logged and counted. The only error Dispatch
// returns is a failure to list the owner's targets at all.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *types.Alert) (types.DispatchResult, error) {
	var result types.DispatchResult

	targets, err := d.targets.ListByOwner(ctx, alert.OwnerID)
	if err != nil {
		return result, err
	}
	result.Targets = len(targets)

	if len(targets) == 0 {
		d.logger.InfoContext(ctx, "no delivery targets for alert",
			"alert_id", alert.ID,
			"owner_id", alert.OwnerID,
		)
		return result, nil
	}

	for _, target := range targets {
		err := d.sender.Send(ctx, target, alert)
		switch {
		case err == nil:
			result.Delivered++
		case types.HasCode(err, types.ErrCodeTargetGone):
			if delErr := d.targets.Delete(ctx, target.ID); delErr != nil {
				d.logger.ErrorContext(ctx, "failed to prune dead delivery target",
					"target_id", target.ID,
					"error", delErr,
				)
				result.Failed++
				continue
			}
			d.logger.InfoContext(ctx, "pruned dead delivery target",
				"target_id", target.ID,
				"owner_id", alert.OwnerID,
				"platform", target.Platform,
			)
			result.Pruned++
		default:
			d.logger.WarnContext(ctx, "alert delivery failed",
				"alert_id", alert.ID,
				"target_id", target.ID,
				"platform", target.Platform,
				"error", err,
			)
			result.Failed++
		}
	}

	d.logger.InfoContext(ctx, "alert dispatched",
		"alert_id", alert.ID,
		"targets", result.Targets,
		"delivered", result.Delivered,
		"pruned", result.Pruned,
		"failed", result.Failed,
	)
	return result, nil
}

// Package metrics emits operational metrics for the alert engine to
// CloudWatch. Emission is fire-and-forget: a metrics outage is logged and
// never affects cycle processing.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"fieldwatch/internal/types"
)

// Namespace is the CloudWatch namespace all engine metrics live under.
const Namespace = "FieldWatch/AlertEngine"

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Emitter publishes engine metrics to a CloudWatch namespace.
type Emitter struct {
	client CloudWatchClient
	logger *slog.Logger
}

// NewEmitter creates an Emitter. A nil client yields a no-op emitter so
// local development can run without AWS credentials.
func NewEmitter(client CloudWatchClient, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{client: client, logger: logger}
}

// RecordCycle emits the per-cycle metrics: duration, sites processed, sites
// failed, and alerts created.
func (e *Emitter) RecordCycle(ctx context.Context, stats types.CycleStats) {
	if e.client == nil {
		return
	}

	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String("CycleDuration"),
			Value:      aws.Float64(float64(stats.Duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
		{
			MetricName: aws.String("CycleSitesProcessed"),
			Value:      aws.Float64(float64(stats.Sites)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String("CycleSitesFailed"),
			Value:      aws.Float64(float64(stats.Failed)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String("CycleAlertsCreated"),
			Value:      aws.Float64(float64(stats.AlertsCreated)),
			Unit:       cwtypes.StandardUnitCount,
		},
	}

	e.put(ctx, data)
}

// RecordDispatch emits per-alert delivery outcome counts.
func (e *Emitter) RecordDispatch(ctx context.Context, rule types.RuleType, result types.DispatchResult) {
	if e.client == nil {
		return
	}

	ruleDim := cwtypes.Dimension{
		Name:  aws.String("Rule"),
		Value: aws.String(string(rule)),
	}
	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String("AlertDeliveries"),
			Value:      aws.Float64(float64(result.Delivered)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{ruleDim},
		},
		{
			MetricName: aws.String("AlertDeliveryFailures"),
			Value:      aws.Float64(float64(result.Failed)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{ruleDim},
		},
		{
			MetricName: aws.String("TargetsPruned"),
			Value:      aws.Float64(float64(result.Pruned)),
			Unit:       cwtypes.StandardUnitCount,
		},
	}

	e.put(ctx, data)
}

// RecordCleanup emits the retention sweep counters.
func (e *Emitter) RecordCleanup(ctx context.Context, deactivated, archived int64, duration time.Duration) {
	if e.client == nil {
		return
	}

	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String("AlertsDeactivated"),
			Value:      aws.Float64(float64(deactivated)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String("SnapshotsArchived"),
			Value:      aws.Float64(float64(archived)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String("CleanupDuration"),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
	}

	e.put(ctx, data)
}

func (e *Emitter) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(Namespace),
		MetricData: data,
	}
	if _, err := e.client.PutMetricData(ctx, input); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish metrics", "error", err)
	}
}

/*
Package service implements the bottleneck engine of the telemetry demo.

It sits between the HTTP handlers and the workload strategies. The handler asks
the selector for a decision once per request; the selector draws from an
injectable random source and, on a trigger, runs one of the five workloads on
the calling goroutine before the response is written.

Bottleneck Selector:

	workloads := workload.NewSet(cfg.Engine, workload.Dependencies{
		Cache:  memo,
		Random: rng,
		Logger: log,
	})
	selector := service.NewBottleneckSelector(cfg.Engine, workloads, rng, log,
		service.WithRecorder(metrics),
	)

	tc := logger.NewContext()
	decision := selector.Decide(ctx, requestID, tc)

The telemetry context receives performance_issue, slow_operation_type and
operation_duration_ms plus whatever the workload itself reports.

Failure Handling:

Workload errors never fail the request. They are logged and attached to the
decision. A failed external call is replaced by the CPU-bound workload and the
decision keeps the originally selected operation label, with FellBack set.

Metrics:

Metrics implements domain.DecisionRecorder and aggregates decisions per
operation kind: executions, failures, fallbacks, min/max/average latency and
a latency distribution. Snapshot returns a consistent copy for exposition.

Thread Safety:

The selector holds no per-request state and is safe for concurrent use as long
as its random source is. Metrics uses atomic counters for the global totals and
a read-write mutex for the per-operation maps.
*/
package service

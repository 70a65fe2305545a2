/*
Package domain contains the core entities and interfaces of the telemetry demo.

The service emits realistic latency and load patterns for observability tooling
by injecting synthetic bottlenecks into a fraction of inbound requests. This
package holds the vocabulary shared by every layer:

Operation Kinds:
The closed set of simulated slow operations. The string value of each kind is
the label written to the slow_operation_type telemetry field.

	for _, kind := range domain.AllOperations() {
		fmt.Println(kind) // http_client, json_processing, ...
	}

Bottleneck Decisions:
BottleneckDecision is produced once per request by a Selector and reports
whether a bottleneck was injected, which kind, and how long it took.

Workloads:
Workload is the single capability every simulation implements. Workloads block
the calling goroutine for their full cost and write incidental metadata (sizes,
counts) into a TelemetryContext.

	err := workload.Execute(ctx, requestID, telemetry)

Randomness:
RandomSource is injected into the selector and the workloads rather than read
from a package global, so tests can use a seeded source.

Configuration:
EngineConfig, CacheConfig, RateLimitConfig and ClientConfig are plain value
objects loaded by the config package from YAML and the environment.
*/
package domain

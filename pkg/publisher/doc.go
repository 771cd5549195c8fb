// Package publisher buffers usage metrics and ships them to a metrics
// backend in batches.
//
// A Publisher turns usage records into data points (InputTokens,
// OutputTokens, TotalTokens, EstimatedCost and, for incident-scoped calls,
// TotalTokensPerIncident) dimensioned by agent and model. Points are sent in
// batches of at most BatchSize. Failed invocations are published as
// APIErrors and flushed immediately.
//
// # Backends
//
//   - CloudWatchBackend publishes to Amazon CloudWatch and can read back
//     statistics and create alarms.
//   - PrometheusBackend maps points onto the Prometheus usage metrics.
//   - LogBackend writes points to the structured log.
//   - MultiBackend fans out to several backends.
//
// # Usage
//
//	pub := publisher.New(publisher.NewCloudWatchBackend(cloudwatch.NewFromConfig(awsCfg)), "BedrockUsage")
//	if err := pub.Record(ctx, record); err != nil {
//	    log.Printf("publish failed: %v", err)
//	}
//	defer pub.Flush(ctx)
package publisher

/*
Package metrics defines the Prometheus metrics of meta-manager.

All metrics are registered on the default registry at init. The CLI is
short-lived, so nothing is served over HTTP; WriteTextfile dumps the
registry in the text exposition format for node_exporter's textfile
collector.

# Metrics

	meta_manager_entries_total                 gauge
	meta_manager_entries_deployed              gauge
	meta_manager_archive_bytes                 gauge
	meta_manager_operations_total              counter{operation,result}
	meta_manager_operation_duration_seconds    histogram{operation}
	meta_manager_deploy_duration_seconds       histogram{format}
	meta_manager_archives_created_total        counter

The gauges are recomputed by Collector from a full store listing. Result
maps an error onto the result label using the error kinds of pkg/types.

# Usage

	timer := metrics.NewTimer()
	err := deployer.Deploy(rec, target)
	timer.ObserveDurationVec(metrics.DeployDuration, "zip")
	metrics.RecordOperation("deploy", err)
*/
package metrics

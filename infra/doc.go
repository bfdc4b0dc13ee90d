// Package infra holds the adapters that connect the charging core to the
// outside world: the MQTT wallbox commander, telemetry ingestion, the
// wholesale price client, metrics sinks, Sentry reporting and zerolog
// output. Adapters implement interfaces declared under core and never import
// each other's internals.
package infra

/*
Package runtime assembles the gateway.

Service (service.go) owns the pieces built from config.Config:
  - the transport pair built through the transport registry
  - the correlation broker and the Watermill router consuming its reply topic
  - the strategy registry: base, logging, http and bridge, plus the bridge
    again under the transport name when that name is free
  - the pipeline and its route table, loaded from RoutesFile and kept in sync
    with the file when WatchRoutes is set
  - the HTTP server with /healthz and, when MetricsEnabled, /metrics

The reply router carries a middleware chain (middleware.go): correlation id
lifting, trace logging, OpenTelemetry spans, Watermill Prometheus metrics and
panic recovery. Extra registrations go in ServiceDependencies.Middlewares.

# Sub-packages

  - config/: configuration, YAML loading and environment overrides
  - errors/: sentinel errors
  - ids/: monotonic ULIDs for correlation and message ids
  - jsoncodec/: JSON encoding backed by sonic
  - logging/: the ServiceLogger contract and its adapters
  - metadata/: flat string headers shared by HTTP and messages
*/
package runtime

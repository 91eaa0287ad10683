// Package flowgate is an HTTP API gateway built on Watermill. Incoming
// requests are matched against a path trie, checked by an optional JSON
// schema and then handed to one or more strategies: a static echo, a logger,
// a pooled HTTP forwarder, or a bridge that turns a pub/sub transport into
// request/response calls correlated by id.
//
// A route either names a default strategy or a chain of steps. Awaited steps
// run in order and may feed their response body to later steps; a step whose
// response code is 400 or above ends the chain. Fire-and-forget steps are
// detached from the request and their outcome never reaches the client.
//
// Service wires everything from Config: it builds the transport selected by
// PubSubSystem, starts the reply router, loads the route file and serves the
// gateway, /healthz and optionally /metrics.
//
// # Transports
//
// The bridge strategy can talk through:
//   - kafka: keyed publishing and per-instance reply partitions
//   - rabbitmq: durable request queues, a private reply queue per instance
//   - nats: core NATS subjects
//   - aws: SNS topics fanned out to per-instance SQS queues
//   - http: webhook-style POSTs with an embedded receiver
//   - channel: in-process Go channels for tests and embedded responders
//
// Custom transports register a TransportBuilder on DefaultTransportRegistry or
// are passed prebuilt through ServiceDependencies.Transport.
//
// # Route files
//
//	routes:
//	  - url: /orders/:id
//	    method: POST
//	    validationSchema: order
//	    steps:
//	      - {name: kafka, extract: AllParams, payload: {topic: orders}}
//	      - {name: logging, noWait: true}
//
// Files are YAML or JSON and are reloaded on change when WatchRoutes is set.
package flowgate

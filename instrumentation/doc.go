// Package instrumentation provides OpenTelemetry instrumentation for the grant core.
//
// Instrumentation owns a meter provider and a tracer provider. When disabled
// both are no-op. When enabled they are the OpenTelemetry SDK providers; metrics
// can be exported in the Prometheus exposition format.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:     "oauth2-server",
//		ServiceVersion:  "1.0.0",
//		Enabled:         true,
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP boundary:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// Grants:
//   - oauth.token.requests{grant_type, result}
//   - oauth.authorization.requests{response_type, result}
//   - oauth.code.issued{client_id}, oauth.code.redeemed{client_id}
//   - oauth.token.refreshed{client_id}
//   - oauth.errors{error}
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type}
//   - oauth.audit.events{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.{clients,codes,refresh_tokens,access_tokens}.count
//
// # Security Considerations
//
// Never record credential values (codes, tokens, client secrets, passwords)
// in spans or metric attributes. client_id labels are fine at low client counts
// but raise cardinality for large deployments.
package instrumentation

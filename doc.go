// Package tclib hosts a transaction-coordinator participant: the engine that
// sequences commit and audit phases for one participant process, and the HTTP
// server through which a coordinator drives it.
//
// Embedders register their Callbacks on the server's engine and start it:
//
//	cfg := tclib.Config{Listen: ":9443", DisableMTLS: true}
//	srv, stop, err := tclib.StartServer(ctx, cfg, tclib.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer stop(context.Background())
//	if err := srv.Engine().Register(myCallbacks); err != nil {
//		return err
//	}
//
// Calls arrive as POST /v1/tc/{service} and are serialised by the engine:
// commit and audit phases must follow the transition tables for the
// participant's role (platform or driver), the configuration scope announced
// by notify-session-config is validated on platform participants, and an audit
// cancel that races ahead of its audit start is remembered so the start is
// answered as cancelled.
//
// Telemetry follows the usual knobs: OTLPEndpoint enables tracing (grpc://,
// grpcs://, http://, https:// or a bare host:port for insecure gRPC),
// MetricsListen serves Prometheus metrics, and EnableRuntimeMetrics adds Go
// runtime instruments to that endpoint.
package tclib

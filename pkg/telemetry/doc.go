// Package telemetry provides observability instrumentation for configdesk.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into one
// Telemetry value that the session, completion and API layers share.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("telemetry")
//	}
//	defer tel.Shutdown(context.Background())
//
// Library code that is handed no telemetry uses NewNop, whose components
// record nothing.
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("session").WithSessionID(id)
//	logger.Info("session opened")
//	logger.WithError(err).Error("persist failed")
//
// # Metrics
//
//	tel.Metrics.RecordCompletion("value", "ok", 4, elapsed)
//	tel.Metrics.RecordSync("text", "parse_error", elapsed)
//	tel.Metrics.RecordPersist("file", err, elapsed)
//
// Metrics are served by the API's /metrics route, or by a dedicated
// listener when MetricsConfig.ListenAddress is set.
//
// # Event Publishing
//
// Sessions publish sync.applied, sync.rejected, persist.succeeded and
// persist.failed events:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
// Event filters: FilterByLevel, FilterByType, FilterBySessionID.
package telemetry

// Package logging provides structured logging for tftbridge.
//
// It wraps log/slog so every component logs the same way: JSON by
// default, text for development, with service and version attached to
// each record.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("relay session started", "session", id)
//	logger.Error("tft read failed", "error", err)
//
// Never log MQTT or InfluxDB credentials.
package logging

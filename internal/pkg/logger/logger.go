package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with KYC risk specific functionality
type Logger struct {
	*zap.Logger
	serviceName string
}

// ContextKey for request context values
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	SubjectKey   ContextKey = "subject"
	TraceIDKey   ContextKey = "trace_id"
	SpanIDKey    ContextKey = "span_id"
	BatchIDKey   ContextKey = "batch_id"
)

// New creates a new logger instance
func New(serviceName, environment string, debug bool) (*Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	config.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     environment,
		"pid":     os.Getpid(),
	}

	zapLogger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: serviceName,
	}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), serviceName: "nop"}
}

// Wrap adapts an existing zap logger, e.g. one built with zaptest/observer
func Wrap(z *zap.Logger, serviceName string) *Logger {
	return &Logger{Logger: z, serviceName: serviceName}
}

// ServiceName returns the service the logger was built for
func (l *Logger) ServiceName() string {
	return l.serviceName
}

// Named returns a named sub-logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:      l.Logger.Named(name),
		serviceName: l.serviceName,
	}
}

// WithContext returns a logger with context values
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []zap.Field{}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if subject, ok := ctx.Value(SubjectKey).(string); ok && subject != "" {
		fields = append(fields, zap.String("subject", subject))
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if spanID, ok := ctx.Value(SpanIDKey).(string); ok && spanID != "" {
		fields = append(fields, zap.String("span_id", spanID))
	}
	if batchID, ok := ctx.Value(BatchIDKey).(string); ok && batchID != "" {
		fields = append(fields, zap.String("batch_id", batchID))
	}

	return &Logger{
		Logger:      l.With(fields...),
		serviceName: l.serviceName,
	}
}

// WithBatch returns a logger with batch context
func (l *Logger) WithBatch(batchID string, size int) *Logger {
	return &Logger{
		Logger: l.With(
			zap.String("batch_id", batchID),
			zap.Int("batch_size", size),
		),
		serviceName: l.serviceName,
	}
}

// BatchStarted logs the start of a batch run
func (l *Logger) BatchStarted(batchID string, size, workers int) {
	l.Info("batch started",
		zap.String("batch_id", batchID),
		zap.Int("batch_size", size),
		zap.Int("workers", workers),
	)
}

// PhaseChanged logs an orchestrator phase transition
func (l *Logger) PhaseChanged(batchID, from, to string) {
	l.Debug("batch phase changed",
		zap.String("batch_id", batchID),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// RecordScored logs the outcome of a single record
func (l *Logger) RecordScored(customerID string, score int, band string, confidence float64) {
	l.Debug("record scored",
		zap.String("customer_id", customerID),
		zap.Int("risk_score", score),
		zap.String("band", band),
		zap.Float64("confidence", confidence),
	)
}

// RecordFailed logs a per-record scoring failure
func (l *Logger) RecordFailed(customerID string, index int, err error) {
	l.Error("record scoring failed",
		zap.String("customer_id", customerID),
		zap.Int("row", index),
		zap.Error(err),
	)
}

// LookupWarning logs a reference data miss
func (l *Logger) LookupWarning(customerID, table, code string) {
	l.Warn("reference data lookup miss",
		zap.String("customer_id", customerID),
		zap.String("table", table),
		zap.String("code", code),
	)
}

// SanctionsMatched logs a positive sanctions match decision
func (l *Logger) SanctionsMatched(customerID, entryID, listID string, confidence float64) {
	l.Warn("sanctions match",
		zap.String("customer_id", customerID),
		zap.String("entry_id", entryID),
		zap.String("list_id", listID),
		zap.Float64("confidence", confidence),
	)
}

// BatchCompleted logs the completion of a batch run
func (l *Logger) BatchCompleted(batchID string, scored, failed int, meanScore float64, durationMs int64) {
	l.Info("batch completed",
		zap.String("batch_id", batchID),
		zap.Int("scored", scored),
		zap.Int("failed", failed),
		zap.Float64("mean_score", meanScore),
		zap.Int64("duration_ms", durationMs),
	)
}

// AlertCreated logs alert creation
func (l *Logger) AlertCreated(alertID, alertType, customerID string, riskScore int) {
	l.Warn("alert created",
		zap.String("alert_id", alertID),
		zap.String("alert_type", alertType),
		zap.String("customer_id", customerID),
		zap.Int("risk_score", riskScore),
	)
}

// NarrativeFallback logs when the narrative provider failed and the template was used
func (l *Logger) NarrativeFallback(customerID string, err error) {
	l.Warn("narrative fallback to template",
		zap.String("customer_id", customerID),
		zap.Error(err),
	)
}

// LatencyWarning logs when a step exceeds expected latency
func (l *Logger) LatencyWarning(checkType string, durationMs, thresholdMs int64) {
	l.Warn("latency threshold exceeded",
		zap.String("check_type", checkType),
		zap.Int64("duration_ms", durationMs),
		zap.Int64("threshold_ms", thresholdMs),
	)
}

// Helper field functions

// ErrorField creates an error field
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// IntField creates an int field
func IntField(key string, value int) zap.Field {
	return zap.Int(key, value)
}


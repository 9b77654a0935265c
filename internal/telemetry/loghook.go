package telemetry

import (
	"context"
	"fmt"
	"sort"

	"github.com/szibis/stream-inserter/internal/logging"
	otellog "go.opentelemetry.io/otel/log"
)

// NewLogHook forwards every log line to the OTLP log exporter. It returns
// nil when telemetry is disabled.
func (t *Telemetry) NewLogHook() logging.LogHook {
	if !t.Enabled() {
		return nil
	}
	logger := t.logger

	return func(level logging.Level, msg string, attrs map[string]interface{}) {
		var record otellog.Record
		record.SetBody(otellog.StringValue(msg))
		record.SetSeverity(severity(level))
		record.SetSeverityText(string(level))

		if len(attrs) > 0 {
			keys := make([]string, 0, len(attrs))
			for k := range attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			kvs := make([]otellog.KeyValue, 0, len(keys))
			for _, k := range keys {
				kvs = append(kvs, otellog.KeyValue{Key: k, Value: value(attrs[k])})
			}
			record.AddAttributes(kvs...)
		}
		logger.Emit(context.Background(), record)
	}
}

func severity(level logging.Level) otellog.Severity {
	switch level {
	case logging.LevelDebug:
		return otellog.SeverityDebug
	case logging.LevelWarn:
		return otellog.SeverityWarn
	case logging.LevelError:
		return otellog.SeverityError
	case logging.LevelFatal:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityInfo
	}
}

func value(v interface{}) otellog.Value {
	switch val := v.(type) {
	case nil:
		return otellog.StringValue("<nil>")
	case string:
		return otellog.StringValue(val)
	case int:
		return otellog.IntValue(val)
	case int32:
		return otellog.Int64Value(int64(val))
	case int64:
		return otellog.Int64Value(val)
	case uint64:
		return otellog.Int64Value(int64(val))
	case float32:
		return otellog.Float64Value(float64(val))
	case float64:
		return otellog.Float64Value(val)
	case bool:
		return otellog.BoolValue(val)
	case error:
		return otellog.StringValue(val.Error())
	default:
		return otellog.StringValue(fmt.Sprint(val))
	}
}

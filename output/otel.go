package output

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/crishoj/odf-fetch/config"
	"github.com/crishoj/odf-fetch/logger"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const eventName = "odf.record"

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
}

func newOtelLogger(cfg *config.Config) (*otelLogger, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := strings.TrimSpace(cfg.OtelEndpoint)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.OtelServiceName),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("odf-fetch"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
	}, nil
}

func (o *otelLogger) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *otelLogger) Emit(recordType string, payload interface{}) {
	if o == nil || o.logger == nil {
		return
	}
	o.logger.Emit(context.Background(), buildRecord(recordType, payload, time.Now()))
}

func buildRecord(recordType string, payload interface{}, now time.Time) otelLog.Record {
	data := payloadToMap(payload)

	var record otelLog.Record
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName(eventName)
	record.SetSeverity(otelLog.SeverityInfo)
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if attrs := semanticAttributes(recordType, data); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}
	if data != nil {
		record.SetBody(toLogValue(data))
	} else if value := toLogValue(payload); value.Kind() != otelLog.KindEmpty {
		record.SetBody(value)
	}
	return record
}

func (o *otelLogger) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

func semanticAttributes(recordType string, data map[string]interface{}) []otelLog.KeyValue {
	if len(data) == 0 {
		return nil
	}
	switch recordType {
	case "found":
		return foundSemanticAttributes(data)
	case "artifact":
		return artifactSemanticAttributes(data)
	case "metrics":
		return metricsSemanticAttributes(data)
	default:
		return nil
	}
}

func foundSemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	kvs := fileAttributes(getStringField(data, "local_path"))
	if size, ok := getInt64Field(data, "size"); ok {
		kvs = append(kvs, otelLog.Int64(string(semconv.FileSizeKey), size))
	}
	kvs = appendStringAttr(kvs, "odf.discipline", getStringField(data, "discipline"))
	kvs = appendStringAttr(kvs, "odf.type", getStringField(data, "type"))
	kvs = appendStringAttr(kvs, "odf.timestamp", getStringField(data, "timestamp"))
	kvs = appendStringAttr(kvs, "odf.remote_path", getStringField(data, "remote_path"))
	if fetched, ok := data["fetched"].(bool); ok {
		kvs = append(kvs, otelLog.Bool("odf.fetched", fetched))
	}
	for algo, value := range getStringMapField(data, "checksums") {
		kvs = appendStringAttr(kvs, fmt.Sprintf("odf.file.hash.%s", algo), value)
	}
	return kvs
}

func artifactSemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	kvs := fileAttributes(getStringField(data, "path"))
	kvs = appendStringAttr(kvs, "odf.stage", getStringField(data, "stage"))
	kvs = appendStringAttr(kvs, "odf.discipline", getStringField(data, "discipline"))
	kvs = appendStringAttr(kvs, "odf.type", getStringField(data, "type"))
	return kvs
}

func metricsSemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	kvs = appendStringAttr(kvs, "odf.metrics.start_time", getStringField(data, "start_time"))
	kvs = appendStringAttr(kvs, "odf.metrics.end_time", getStringField(data, "end_time"))
	for _, key := range []string{
		"directories", "directory_failures", "entries", "unclassified", "fetched",
		"cached", "download_failures", "disciplines", "incomplete", "artifacts", "failures",
	} {
		if v, ok := getInt64Field(data, key); ok {
			kvs = append(kvs, otelLog.Int64("odf.metrics."+key, v))
		}
	}
	return kvs
}

func fileAttributes(path string) []otelLog.KeyValue {
	if path == "" {
		return nil
	}
	kvs := []otelLog.KeyValue{
		otelLog.String(string(semconv.FilePathKey), path),
		otelLog.String(string(semconv.FileNameKey), filepath.Base(path)),
		otelLog.String(string(semconv.FileDirectoryKey), filepath.Dir(path)),
	}
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		kvs = append(kvs, otelLog.String(string(semconv.FileExtensionKey), ext))
	}
	return kvs
}

func toLogValue(value interface{}) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case map[string]interface{}:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for key, item := range v {
			kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(item)})
		}
		return otelLog.MapValue(kvs...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for k, val := range v {
			kvs = append(kvs, otelLog.String(k, val))
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []interface{}:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		return otelLog.Value{}
	}
}

// payloadToMap flattens structs through their JSON tags.
func payloadToMap(payload interface{}) map[string]interface{} {
	if m, ok := payload.(map[string]interface{}); ok {
		return m
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}
	return decoded
}

func getStringField(values map[string]interface{}, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprint(value)
}

func getInt64Field(values map[string]interface{}, key string) (int64, bool) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func getStringMapField(values map[string]interface{}, key string) map[string]string {
	value, ok := values[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case map[string]string:
		return v
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if val == nil {
				continue
			}
			out[k] = fmt.Sprint(val)
		}
		return out
	default:
		return nil
	}
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}

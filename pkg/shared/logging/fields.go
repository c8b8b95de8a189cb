// Package logging builds logrus-compatible structured field sets so every
// component logs the same vocabulary (component, operation, resource,
// duration) instead of each call site inventing its own keys.
package logging

import "time"

// Fields is a chainable builder around logrus.Fields.
type Fields map[string]interface{}

// NewFields returns an empty field set ready for chaining.
func NewFields() Fields {
	return Fields{}
}

// Component sets the component field.
func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

// Operation sets the operation field.
func (f Fields) Operation(op string) Fields {
	f["operation"] = op
	return f
}

// Resource sets resource_type, and resource_name when non-empty.
func (f Fields) Resource(resourceType, name string) Fields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

// Duration records a duration in whole milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

// Error sets the error field when err is non-nil.
func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// UserID sets user_id when non-empty.
func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

// RequestID sets request_id.
func (f Fields) RequestID(id string) Fields {
	f["request_id"] = id
	return f
}

// TraceID sets trace_id.
func (f Fields) TraceID(id string) Fields {
	f["trace_id"] = id
	return f
}

// StatusCode sets status_code.
func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

// Method sets method.
func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

// URL sets url.
func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

// Count sets count.
func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

// Size records a byte count.
func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

// Version sets version.
func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

// Custom sets an arbitrary key/value pair.
func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus returns the field set as a plain map for logrus.WithFields.
func (f Fields) ToLogrus() map[string]interface{} {
	return f
}

// DatabaseFields builds the field set for a persistence-layer log line.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields builds the field set for an outbound or inbound HTTP call.
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// WorkflowFields builds the field set for a control-loop run's log line.
func WorkflowFields(operation, workflowID string) Fields {
	return NewFields().Component("workflow").Operation(operation).Resource("workflow", workflowID)
}

// MetricsFields builds the field set for a metrics-recording log line.
func MetricsFields(operation, metricName string, value float64) Fields {
	return NewFields().Component("metrics").Operation(operation).Custom("metric_name", metricName).Custom("value", value)
}

// SecurityFields builds the field set for an authentication/authorization
// log line.
func SecurityFields(operation, subject string) Fields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields builds the field set for a timed operation's outcome.
func PerformanceFields(operation string, d time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).Duration(d).Custom("success", success)
}

package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldDataset    = "dataset"
	FieldEndpoint   = "endpoint"
	FieldStart      = "start"
	FieldEnd        = "end"
	FieldOffset     = "offset"
	FieldLength     = "length"
	FieldRows       = "rows"
	FieldPages      = "pages"
	FieldUnit       = "unit"
	FieldTopN       = "top_n"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentEIA      = "eia"
	ComponentDemand   = "demand"
	ComponentCache    = "cache"
	ComponentAMQP     = "amqp"
	ComponentKafka    = "kafka"
	ComponentInflux   = "influx"
	ComponentReport   = "report"
	ComponentTrace    = "trace"
	ComponentSecurity = "security"
)

// Operations defines standard operation names
const (
	OpFetch     = "fetch"
	OpParse     = "parse"
	OpAggregate = "aggregate"
	OpPublish   = "publish"
	OpWrite     = "write"
	OpRender    = "render"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithWindow adds the dataset and date window of a query
func (f LogFields) WithWindow(dataset, start, end string) LogFields {
	f[FieldDataset] = dataset
	f[FieldStart] = start
	f[FieldEnd] = end
	return f
}

// WithPage adds pagination fields
func (f LogFields) WithPage(offset, length, rows int) LogFields {
	f[FieldOffset] = offset
	f[FieldLength] = length
	f[FieldRows] = rows
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}

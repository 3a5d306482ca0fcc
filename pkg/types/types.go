// ABOUTME: Core types for the workflow orchestration engine
// ABOUTME: Defines the workflow/task data model, execution graph, and results shared across packages

package types

import (
	"time"
)

// InputType enumerates the declared types for a workflow input parameter.
type InputType string

const (
	InputString  InputType = "string"
	InputNumber  InputType = "number"
	InputBoolean InputType = "boolean"
	InputObject  InputType = "object"
	InputArray   InputType = "array"
)

// InputParam is one declared input parameter of a workflow definition.
type InputParam struct {
	Name     string      `yaml:"name" json:"name"`
	Type     InputType   `yaml:"type" json:"type"`
	Required bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Default  interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// TaskKind enumerates the closed set of task-spec kinds the executor (C4) dispatches on.
type TaskKind string

const (
	KindHTTP      TaskKind = "http"
	KindTransform TaskKind = "transform"
	KindInline    TaskKind = "inline"
)

// RetrySpec configures the retry wrapper (C5) for one task step.
type RetrySpec struct {
	InitialDelay  time.Duration `yaml:"initialDelay,omitempty" json:"initialDelay,omitempty"`
	MaxDelay      time.Duration `yaml:"maxDelay,omitempty" json:"maxDelay,omitempty"`
	Multiplier    float64       `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	MaxRetryCount int           `yaml:"maxRetryCount,omitempty" json:"maxRetryCount,omitempty"`
}

// DefaultRetrySpec returns the spec's documented defaults (§4.5).
func DefaultRetrySpec() RetrySpec {
	return RetrySpec{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		MaxRetryCount: 3,
	}
}

// CacheSpec configures the cache wrapper (C5) for one task step.
type CacheSpec struct {
	Enabled          bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	KeyTemplate      string        `yaml:"key,omitempty" json:"key,omitempty"`
	TTL              time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	StaleTTL         time.Duration `yaml:"staleTtl,omitempty" json:"staleTtl,omitempty"`
	CacheOnlySuccess bool          `yaml:"cacheOnlySuccess,omitempty" json:"cacheOnlySuccess,omitempty"`
	CacheableMethods []string      `yaml:"cacheableMethods,omitempty" json:"cacheableMethods,omitempty"`
	BypassWhen       string        `yaml:"bypassWhen,omitempty" json:"bypassWhen,omitempty"`
}

// CircuitBreakerSpec configures the circuit breaker wrapper (C5).
type CircuitBreakerSpec struct {
	Enabled           bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	FailureThreshold  uint32        `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"`
	SamplingDuration  time.Duration `yaml:"samplingDuration,omitempty" json:"samplingDuration,omitempty"`
	BreakDuration     time.Duration `yaml:"breakDuration,omitempty" json:"breakDuration,omitempty"`
	HalfOpenRequests  uint32        `yaml:"halfOpenRequests,omitempty" json:"halfOpenRequests,omitempty"`
}

// DefaultCircuitBreakerSpec returns the spec's documented defaults (§4.5).
func DefaultCircuitBreakerSpec() CircuitBreakerSpec {
	return CircuitBreakerSpec{
		FailureThreshold: 5,
		SamplingDuration: 60 * time.Second,
		BreakDuration:    30 * time.Second,
		HalfOpenRequests: 3,
	}
}

// ForEachSpec configures the forEach driver (C6) for one task step.
type ForEachSpec struct {
	Items          string `yaml:"items" json:"items"`
	ItemVar        string `yaml:"itemVar" json:"itemVar"`
	IndexVar       string `yaml:"indexVar,omitempty" json:"indexVar,omitempty"`
	Parallel       bool   `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	MaxConcurrency int    `yaml:"maxConcurrency,omitempty" json:"maxConcurrency,omitempty"`
}

// SwitchCase is one case of a Switch spec.
type SwitchCase struct {
	Match   string `yaml:"match" json:"match"`
	TaskRef string `yaml:"taskRef" json:"taskRef"`
}

// SwitchSpec configures the switch/case evaluator (C3) for one task step.
type SwitchSpec struct {
	Value   string       `yaml:"value" json:"value"`
	Cases   []SwitchCase `yaml:"cases" json:"cases"`
	Default string       `yaml:"default,omitempty" json:"default,omitempty"`
}

// TaskStep is one node of a workflow definition (§3 "Task step").
type TaskStep struct {
	ID            string              `yaml:"id" json:"id"`
	TaskRef       string              `yaml:"taskRef,omitempty" json:"taskRef,omitempty"`
	WorkflowRef   string              `yaml:"workflowRef,omitempty" json:"workflowRef,omitempty"`
	Input         map[string]string   `yaml:"input,omitempty" json:"input,omitempty"`
	DependsOn     []string            `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Condition     string              `yaml:"condition,omitempty" json:"condition,omitempty"`
	Switch        *SwitchSpec         `yaml:"switch,omitempty" json:"switch,omitempty"`
	ForEach       *ForEachSpec        `yaml:"forEach,omitempty" json:"forEach,omitempty"`
	Retry         *RetrySpec          `yaml:"retry,omitempty" json:"retry,omitempty"`
	Cache         *CacheSpec          `yaml:"cache,omitempty" json:"cache,omitempty"`
	CircuitBreaker *CircuitBreakerSpec `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
	Fallback      string              `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Timeout       time.Duration       `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// IsSubWorkflow reports whether this step invokes a sub-workflow rather than a task spec.
func (s *TaskStep) IsSubWorkflow() bool {
	return s.WorkflowRef != ""
}

// HTTPSpec is the kind-specific payload of an http task spec.
type HTTPSpec struct {
	Method  string            `yaml:"method" json:"method"`
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty" json:"body,omitempty"`
}

// TransformOp is one step of a transform pipeline; the Kind selects which
// fields of the tagged-union-like struct are meaningful. Keeping this as one
// struct (rather than an interface per op) mirrors the spec's "tagged sum
// type + dispatch table" design note (§9) while staying YAML-decodable.
type TransformOp struct {
	Kind string `yaml:"op" json:"op"`

	Field     string                 `yaml:"field,omitempty" json:"field,omitempty"`
	Fields    []string               `yaml:"fields,omitempty" json:"fields,omitempty"`
	Operator  string                 `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value     interface{}            `yaml:"value,omitempty" json:"value,omitempty"`
	Key       string                 `yaml:"key,omitempty" json:"key,omitempty"`
	Aggregations map[string]string   `yaml:"aggregations,omitempty" json:"aggregations,omitempty"`
	LeftKey   string                 `yaml:"leftKey,omitempty" json:"leftKey,omitempty"`
	RightKey  string                 `yaml:"rightKey,omitempty" json:"rightKey,omitempty"`
	RightData string                 `yaml:"rightData,omitempty" json:"rightData,omitempty"`
	JoinType  string                 `yaml:"joinType,omitempty" json:"joinType,omitempty"`
	Order     string                 `yaml:"order,omitempty" json:"order,omitempty"`
	Computed  map[string]string      `yaml:"computed,omitempty" json:"computed,omitempty"`
	Count     int                    `yaml:"count,omitempty" json:"count,omitempty"`
	Size      int                    `yaml:"size,omitempty" json:"size,omitempty"`
	Separator string                 `yaml:"separator,omitempty" json:"separator,omitempty"`
	Template  string                 `yaml:"template,omitempty" json:"template,omitempty"`
	Precision int                    `yaml:"precision,omitempty" json:"precision,omitempty"`
	Min       float64                `yaml:"min,omitempty" json:"min,omitempty"`
	Max       float64                `yaml:"max,omitempty" json:"max,omitempty"`
	Seed      *int64                 `yaml:"seed,omitempty" json:"seed,omitempty"`
	Replace   map[string]string      `yaml:"replace,omitempty" json:"replace,omitempty"`
	Start     int                    `yaml:"start,omitempty" json:"start,omitempty"`
	Length    int                    `yaml:"length,omitempty" json:"length,omitempty"`
}

// TransformSpec is the kind-specific payload of a transform task spec.
type TransformSpec struct {
	Input string        `yaml:"input" json:"input"`
	Ops   []TransformOp `yaml:"ops" json:"ops"`
}

// InlineSpec is the kind-specific payload of an inline task spec: the name of
// a host-registered function (§4.4 "a host-provided function").
type InlineSpec struct {
	Function string `yaml:"function" json:"function"`
}

// TaskSpec is a reusable definition of how to execute a unit of work (§3 "Task spec").
type TaskSpec struct {
	Name      string         `yaml:"name" json:"name"`
	Namespace string         `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Kind      TaskKind       `yaml:"kind" json:"kind"`
	Timeout   time.Duration  `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	HTTP      *HTTPSpec      `yaml:"http,omitempty" json:"http,omitempty"`
	Transform *TransformSpec `yaml:"transform,omitempty" json:"transform,omitempty"`
	Inline    *InlineSpec    `yaml:"inline,omitempty" json:"inline,omitempty"`
}

// WorkflowDefinition is a named DAG of task steps (§3 "Workflow definition").
type WorkflowDefinition struct {
	APIVersion string            `yaml:"apiVersion,omitempty" json:"apiVersion,omitempty"`
	Kind       string            `yaml:"kind,omitempty" json:"kind,omitempty"`
	Metadata   WorkflowMetadata  `yaml:"metadata" json:"metadata"`
	Input      []InputParam      `yaml:"input,omitempty" json:"input,omitempty"`
	Tasks      []TaskStep        `yaml:"tasks" json:"tasks"`
	Output     map[string]string `yaml:"output,omitempty" json:"output,omitempty"`
}

// WorkflowMetadata names a workflow definition for catalog lookup.
type WorkflowMetadata struct {
	Name      string `yaml:"name" json:"name"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Version   string `yaml:"version,omitempty" json:"version,omitempty"`
}

// TaskStatus is the lifecycle state of a task step during scheduling (§4.7).
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
	TaskFailed    TaskStatus = "failed"
)

// ErrorInfo is the structured error info carried by a task execution result (§3).
type ErrorInfo struct {
	Kind                  ErrorKind `json:"kind"`
	Message               string    `json:"message"`
	Suggestion            string    `json:"suggestion,omitempty"`
	RetryAttempts         int       `json:"retryAttempts,omitempty"`
	HTTPStatus            int       `json:"httpStatus,omitempty"`
	ServiceHost           string    `json:"serviceHost,omitempty"`
	OccurredAt            time.Time `json:"occurredAt"`
	DurationUntilErrorMs  int64     `json:"durationUntilErrorMs"`
}

// CircuitState is a snapshot of circuit-breaker state attached to a task result.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpenSt   CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// TaskExecutionResult is the result of executing one task step (§3).
type TaskExecutionResult struct {
	ID             string                 `json:"id"`
	Status         TaskStatus             `json:"status"`
	Success        bool                   `json:"success"`
	Output         map[string]interface{} `json:"output,omitempty"`
	Errors         []ErrorInfo            `json:"errors,omitempty"`
	RetryCount     int                    `json:"retryCount"`
	StartedAt      time.Time              `json:"startedAt"`
	CompletedAt    time.Time              `json:"completedAt"`
	Duration       time.Duration          `json:"duration"`
	Skipped        bool                   `json:"skipped,omitempty"`
	SkipReason     string                 `json:"skipReason,omitempty"`
	CircuitState   CircuitState           `json:"circuitState,omitempty"`
	UsedFallback   bool                   `json:"usedFallback,omitempty"`
	FallbackRef    string                 `json:"fallbackRef,omitempty"`
}

// OrchestrationCost is the scheduler's accounting of time spent outside task
// execution (§3, §4.7).
type OrchestrationCost struct {
	SetupMs            int64   `json:"setupMs"`
	TeardownMs         int64   `json:"teardownMs"`
	TaskTimeSumMs      int64   `json:"taskTimeSumMs"`
	SchedulingGapsMs   int64   `json:"schedulingGapsMs"`
	IterationMs        []int64 `json:"iterationMs,omitempty"`
}

// WorkflowExecutionResult is the result of executing a whole workflow (§3, §6).
type WorkflowExecutionResult struct {
	Success              bool                            `json:"success"`
	Output               map[string]interface{}          `json:"output,omitempty"`
	TaskResults          map[string]*TaskExecutionResult `json:"taskResults"`
	Errors               []ErrorInfo                     `json:"errors,omitempty"`
	TotalDurationMs      int64                           `json:"totalDurationMs"`
	GraphBuildDurationMs int64                           `json:"graphBuildDurationMs"`
	OrchestrationCost    OrchestrationCost               `json:"orchestrationCost"`
	ParallelGroups       [][]string                      `json:"parallelGroups,omitempty"`
}

// ExecutionGraph is the compiled, validated DAG produced by the graph builder (C2, §3).
type ExecutionGraph struct {
	NodeIDs        []string            // deterministic, lexicographic order
	Dependencies   map[string][]string // node -> prerequisite node ids
	Dependents     map[string][]string // node -> dependent node ids
	Levels         map[string]int      // node -> level, root level = 0
	ParallelGroups [][]string          // group[level] = ids at that level, lexicographic within
}

// GraphBuildDiagnostics explains each dependency edge detected during compilation (§4.2).
type GraphBuildDiagnostics struct {
	Edges []DependencyEdge
}

// DependencyEdge names one dependency relation and how it was discovered.
type DependencyEdge struct {
	From     string // task id
	To       string // prerequisite task id
	Explicit bool   // true if from dependsOn, false if inferred from a template reference
	Source   string // field path or "dependsOn" for explicit edges
}

// Clock abstracts wall-clock and monotonic time so tests can inject deterministic
// timings for retry/breaker behavior (§9 "Time source").
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by the real time package.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Logger provides structured logging interface, unchanged from the teacher's
// zerolog-backed abstraction.
type Logger interface {
	Debug() LogEvent
	Info() LogEvent
	Warn() LogEvent
	Error() LogEvent
	With() LogContext
}

// LogEvent represents a log event being constructed.
type LogEvent interface {
	Str(key, val string) LogEvent
	Int(key string, val int) LogEvent
	Dur(key string, val time.Duration) LogEvent
	Err(err error) LogEvent
	Bool(key string, val bool) LogEvent
	Any(key string, val interface{}) LogEvent
	Msg(msg string)
	Msgf(format string, args ...interface{})
}

// LogContext represents a logger context being constructed.
type LogContext interface {
	Str(key, val string) LogContext
	Logger() Logger
}

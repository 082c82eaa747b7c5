// Package errors provides the error taxonomy shared by every textagents component.
//
// Every failure surfaced to callers is a *StandardError. The Code identifies the kind
// (definition, missing input, input type, template, output validation, model) and
// all kinds match the ErrTextAgents umbrella under errors.Is.
package errors

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeAgentDefinitionInvalid ErrorCode = "AGENT_DEFINITION_INVALID"
	ErrCodeAgentNotFound          ErrorCode = "AGENT_NOT_FOUND"

	ErrCodeMissingInput     ErrorCode = "MISSING_INPUT"
	ErrCodeInputTypeInvalid ErrorCode = "INPUT_TYPE_INVALID"

	ErrCodeTemplatePlaceholderMissing ErrorCode = "TEMPLATE_PLACEHOLDER_MISSING"

	ErrCodeOutputValidationFailed ErrorCode = "OUTPUT_VALIDATION_FAILED"

	ErrCodeModelInvocationFailed ErrorCode = "MODEL_INVOCATION_FAILED"
	ErrCodeModelTimeout          ErrorCode = "MODEL_TIMEOUT"

	ErrCodeBrokerUnavailable ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// MagicVariableNames lists the auto-filled placeholder names quoted in template errors.
var MagicVariableNames = []string{"CURRENT_DATE", "CURRENT_TIME", "CURRENT_DATETIME"}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	return e.Message
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches kind sentinels: a sentinel with an empty Code matches every
// StandardError, one with a Code matches errors of that code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok || t.Message != "" {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Kind sentinels for errors.Is.
var (
	ErrTextAgents       = &StandardError{}
	ErrDefinition       = &StandardError{Code: ErrCodeAgentDefinitionInvalid}
	ErrMissingInput     = &StandardError{Code: ErrCodeMissingInput}
	ErrInputType        = &StandardError{Code: ErrCodeInputTypeInvalid}
	ErrTemplate         = &StandardError{Code: ErrCodeTemplatePlaceholderMissing}
	ErrOutputValidation = &StandardError{Code: ErrCodeOutputValidationFailed}
	ErrModelInvocation  = &StandardError{Code: ErrCodeModelInvocationFailed}
	ErrModelTimeout     = &StandardError{Code: ErrCodeModelTimeout}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewDefinitionError creates a non-retryable agent definition error with a free-form message.
func NewDefinitionError(message string) *StandardError {
	return newError(ErrCodeAgentDefinitionInvalid, message, false)
}

// NewInvalidTOMLError reports a front-matter header that is not valid TOML.
func NewInvalidTOMLError(err error) *StandardError {
	e := NewDefinitionError(fmt.Sprintf("Invalid TOML in front-matter: %v", err))
	e.Details = err.Error()
	e.Cause = err
	return e
}

func NewMissingSectionError(section string) *StandardError {
	e := NewDefinitionError(fmt.Sprintf(
		"Missing required section '[%s]' in agent definition.\n\n"+
			"Expected:\n"+
			"  [%s]\n"+
			"  model = \"openai:gpt-5\"\n", section, section))
	e.Details = "section: " + section
	return e
}

func NewMissingFieldError(section, field, example string) *StandardError {
	e := NewDefinitionError(fmt.Sprintf(
		"Missing required field '%s' in [%s] section.\n\n"+
			"Expected:\n"+
			"  [%s]\n"+
			"  %s = %s\n", field, section, section, field, example))
	e.Details = fmt.Sprintf("section: %s, field: %s", section, field)
	return e
}

func NewNoOutputFieldsError() *StandardError {
	return NewDefinitionError(
		"No fields defined in [agent.output_type].\n\n" +
			"At least one output field is required. Example:\n\n" +
			"  [agent.output_type]\n" +
			"  reasoning = { type = \"str\", description = \"Explanation\" }\n" +
			"  is_valid = { description = \"Whether valid\" }\n")
}

func NewUnsupportedTypeError(fieldName, typeName string, supported []string) *StandardError {
	e := NewDefinitionError(fmt.Sprintf(
		"Unsupported type '%s' for field '%s'.\n\n"+
			"Supported types: %s\n", typeName, fieldName, strings.Join(supported, ", ")))
	e.Details = fmt.Sprintf("field: %s, type: %s", fieldName, typeName)
	return e
}

func NewNoPromptBodyError() *StandardError {
	return NewDefinitionError(
		"No prompt body found after the TOML header.\n\n" +
			"The agent definition must include a prompt template after '---'. Example:\n\n" +
			"  ---\n" +
			"  [agent]\n" +
			"  model = \"openai:gpt-5\"\n" +
			"  ...\n" +
			"  ---\n" +
			"  Evaluate the following input: {input}\n")
}

func NewNoPlaceholdersError() *StandardError {
	return NewDefinitionError(
		"Prompt body has no {placeholders}.\n\n" +
			"The prompt must contain at least one {variable} to interpolate.\n" +
			"Example: 'Evaluate: {input}'\n")
}

func NewInvalidInputTypeError(inputName, typeName string) *StandardError {
	e := NewDefinitionError(fmt.Sprintf(
		"Invalid input_type for '%s': expected table or string, got %s.\n\n"+
			"Valid examples:\n"+
			"  [agent.input_type]\n"+
			"  user_input = \"str\"\n"+
			"  count = { type = \"int\", optional = true }\n", inputName, typeName))
	e.Details = fmt.Sprintf("input: %s, type: %s", inputName, typeName)
	return e
}

// NewAgentFileNotFoundError is returned when an agent definition path does not exist.
func NewAgentFileNotFoundError(path string) *StandardError {
	e := newError(ErrCodeAgentNotFound, fmt.Sprintf("Agent file not found: %s", path), false)
	e.Details = "path: " + path
	return e
}

// NewAgentNotFoundError is returned when a registry lookup fails.
func NewAgentNotFoundError(agentID string) *StandardError {
	e := newError(ErrCodeAgentNotFound, fmt.Sprintf("Agent '%s' is not registered", agentID), false)
	e.Details = "agentId: " + agentID
	return e
}

// NewMissingInputsError aggregates every missing runtime input into one error.
func NewMissingInputsError(missing, provided, expected, optionalReferenced []string) *StandardError {
	providedStr := "(none)"
	if len(provided) > 0 {
		providedStr = quoteJoin(provided)
	}

	optionalNote := ""
	if len(optionalReferenced) > 0 {
		optionalNote = "\nOptional inputs were marked optional but appear in the prompt/instructions, " +
			"so they still need values: " + quoteJoin(optionalReferenced)
	}

	e := newError(ErrCodeMissingInput, fmt.Sprintf(
		"Missing required input(s): %s\n\n"+
			"Provided: %s\n"+
			"Expected: %s%s\n", quoteJoin(missing), providedStr, quoteJoin(expected), optionalNote), false)
	e.Metadata = map[string]interface{}{
		"missing":            missing,
		"provided":           provided,
		"expected":           expected,
		"optionalReferenced": optionalReferenced,
	}
	return e
}

// NewInputFileNotFoundError reports an @path input whose file does not exist.
func NewInputFileNotFoundError(inputName, path string) *StandardError {
	e := newError(ErrCodeMissingInput, fmt.Sprintf(
		"Input file not found for '%s': %s\n\n"+
			"When using @filepath syntax, the file must exist.\n", inputName, path), false)
	e.Details = fmt.Sprintf("input: %s, path: %s", inputName, path)
	return e
}

// NewCannotCoerceError reports a runtime input that could not be converted to its declared type.
func NewCannotCoerceError(inputName string, value interface{}, targetType string) *StandardError {
	e := newError(ErrCodeInputTypeInvalid, fmt.Sprintf(
		"Cannot convert input '%s' to %s.\n\n"+
			"Received: %s (type: %T)\n"+
			"Expected: %s\n", inputName, targetType, Repr(value), value, targetType), false)
	e.Details = fmt.Sprintf("input: %s, target: %s", inputName, targetType)
	return e
}

// NewMissingPlaceholderError reports a placeholder that survived to interpolation unresolved.
func NewMissingPlaceholderError(placeholder string, available []string) *StandardError {
	availableStr := "(none)"
	if len(available) > 0 {
		sorted := append([]string(nil), available...)
		sort.Strings(sorted)
		availableStr = quoteJoin(sorted)
	}
	e := newError(ErrCodeTemplatePlaceholderMissing, fmt.Sprintf(
		"Template placeholder '{%s}' not found in inputs.\n\n"+
			"Available inputs: %s\n"+
			"Magic variables: %s\n", placeholder, availableStr, strings.Join(MagicVariableNames, ", ")), false)
	e.Details = "placeholder: " + placeholder
	return e
}

// NewModelRetryError is the retry signal raised when a structured result violates
// its declared constraints. The model invoker consumes it while budget remains.
func NewModelRetryError(message string, violations []string) *StandardError {
	e := newError(ErrCodeOutputValidationFailed, message, true)
	e.Metadata = map[string]interface{}{"violations": violations}
	return e
}

// NewOutputValidationError is the terminal form of an output violation, returned
// once the retry budget is exhausted.
func NewOutputValidationError(message string, cause error) *StandardError {
	e := newError(ErrCodeOutputValidationFailed, message, false)
	e.Cause = cause
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewModelInvocationError creates a retryable model provider error.
func NewModelInvocationError(provider string, err error) *StandardError {
	e := newError(ErrCodeModelInvocationFailed, fmt.Sprintf("Model provider '%s' error: %v", provider, err), true)
	e.Details = err.Error()
	e.Cause = err
	return e
}

// NewModelTimeoutError creates a retryable model timeout error.
func NewModelTimeoutError(provider string, err error) *StandardError {
	e := newError(ErrCodeModelTimeout, fmt.Sprintf("Model provider '%s' timed out", provider), true)
	e.Cause = err
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// NewUnknownProviderError is returned for a model identifier no provider serves.
func NewUnknownProviderError(modelID string, known []string) *StandardError {
	e := newError(ErrCodeModelInvocationFailed, fmt.Sprintf(
		"Unknown model provider in '%s'.\n\n"+
			"Use '<provider>:<model>' with one of: %s\n", modelID, strings.Join(known, ", ")), false)
	e.Details = "model: " + modelID
	return e
}

// NewProviderNotConfiguredError reports a provider whose credentials are missing.
func NewProviderNotConfiguredError(provider, hint string) *StandardError {
	e := newError(ErrCodeModelInvocationFailed, fmt.Sprintf(
		"Model provider '%s' is not configured: %s", provider, hint), false)
	e.Details = "provider: " + provider
	return e
}

// NewBrokerError wraps a failed Zeebe gateway command.
func NewBrokerError(operation string, err error, retryable bool) *StandardError {
	e := newError(ErrCodeBrokerUnavailable, fmt.Sprintf("Zeebe operation '%s' failed: %v", operation, err), retryable)
	e.Cause = err
	return e
}

func NewInternalError(err error) *StandardError {
	e := newError(ErrCodeInternal, "Unexpected error", false)
	e.Details = err.Error()
	e.Cause = err
	return e
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns how many job-level retries an error code deserves.
// Output validation is retried inside the model invoker, so it gets none here.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeModelInvocationFailed:
		return 3
	case ErrCodeModelTimeout:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"errorCategory":     GetErrorCategory(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if missing, ok := stdErr.Metadata["missing"]; ok {
		vars["missingInputs"] = missing
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// As returns the StandardError in err's chain, if any.
func As(err error) (*StandardError, bool) {
	for err != nil {
		if stdErr, ok := err.(*StandardError); ok {
			return stdErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

// IsRetryable reports whether err is a StandardError marked retryable.
func IsRetryable(err error) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Retryable
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeAgentDefinitionInvalid, ErrCodeAgentNotFound:
		return "DEFINITION"
	case ErrCodeMissingInput, ErrCodeInputTypeInvalid:
		return "INPUT"
	case ErrCodeTemplatePlaceholderMissing:
		return "TEMPLATE"
	case ErrCodeOutputValidationFailed:
		return "OUTPUT"
	case ErrCodeModelInvocationFailed, ErrCodeModelTimeout:
		return "MODEL"
	case ErrCodeBrokerUnavailable:
		return "INFRASTRUCTURE"
	default:
		return "OTHER"
	}
}

// Repr renders a value the way error messages quote it: strings quoted, everything else plain.
func Repr(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = Repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return strings.Join(quoted, ", ")
}

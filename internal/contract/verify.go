package contract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dataparency-dev/delegation-core/internal/crypto"
	"github.com/dataparency-dev/delegation-core/internal/types"
)

// CheckResult is the outcome of one verification step.
// Score is a pointer so composite's weighted mode can distinguish
// "no score reported" (fall back to passed ? 1 : 0) from an explicit 0.
type CheckResult struct {
	Passed  bool     `json:"passed"`
	Score   *float64 `json:"score,omitempty"`
	Details string   `json:"details,omitempty"`
}

func scoreOf(r CheckResult) float64 {
	if r.Score != nil {
		return *r.Score
	}
	if r.Passed {
		return 1
	}
	return 0
}

// CheckFunc is a deterministic_check implementation: given the task
// output and the contract's checkParams, produce a CheckResult.
type CheckFunc func(output any, params map[string]any) CheckResult

// CheckFunctionRegistry is a lookup table of named deterministic check
// functions.
type CheckFunctionRegistry struct {
	funcs map[string]CheckFunc
}

// NewCheckFunctionRegistry builds a registry seeded with the seven
// standard built-in check functions.
func NewCheckFunctionRegistry() *CheckFunctionRegistry {
	r := &CheckFunctionRegistry{funcs: make(map[string]CheckFunc)}
	r.Register("regex_match", checkRegexMatch)
	r.Register("json_schema", checkJSONSchema)
	r.Register("string_length", checkStringLength)
	r.Register("array_length", checkArrayLength)
	r.Register("field_exists", checkFieldExists)
	r.Register("exit_code", checkExitCode)
	r.Register("output_equals", checkOutputEquals)
	return r
}

// Register adds or replaces a named check function.
func (r *CheckFunctionRegistry) Register(name string, fn CheckFunc) {
	r.funcs[name] = fn
}

// Lookup returns the named function, or nil if absent.
func (r *CheckFunctionRegistry) Lookup(name string) CheckFunc {
	return r.funcs[name]
}

// fieldPath resolves a dot-separated path against a map/slice value
// tree. Missing intermediate traversal yields (nil, false).
func fieldPath(value any, path string) (any, bool) {
	if path == "" {
		return value, true
	}
	cur := value
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func checkRegexMatch(output any, params map[string]any) CheckResult {
	pattern, _ := params["pattern"].(string)
	flags, _ := params["flags"].(string)
	field, _ := params["field"].(string)

	expr := pattern
	if strings.Contains(flags, "i") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return CheckResult{Passed: false, Details: "invalid regex: " + err.Error()}
	}

	val, ok := fieldPath(output, field)
	if !ok {
		return CheckResult{Passed: false, Details: "field not found: " + field}
	}
	s, ok := val.(string)
	if !ok {
		return CheckResult{Passed: false, Details: "field is not a string"}
	}
	return CheckResult{Passed: re.MatchString(s)}
}

func checkJSONSchema(output any, params map[string]any) CheckResult {
	schema, _ := params["schema"].(map[string]any)
	result, err := validateAgainstSchema(schema, output)
	if err != nil {
		return CheckResult{Passed: false, Details: err.Error()}
	}
	return result
}

func checkStringLength(output any, params map[string]any) CheckResult {
	field, _ := params["field"].(string)
	val, ok := fieldPath(output, field)
	if !ok {
		return CheckResult{Passed: false, Details: "field not found: " + field}
	}
	s, ok := val.(string)
	if !ok {
		return CheckResult{Passed: false, Details: "field is not a string"}
	}
	n := len(s)
	if min, ok := numParam(params, "min"); ok && n < min {
		return CheckResult{Passed: false, Details: "string shorter than min"}
	}
	if max, ok := numParam(params, "max"); ok && n > max {
		return CheckResult{Passed: false, Details: "string longer than max"}
	}
	return CheckResult{Passed: true}
}

func checkArrayLength(output any, params map[string]any) CheckResult {
	field, _ := params["field"].(string)
	val, ok := fieldPath(output, field)
	if !ok {
		return CheckResult{Passed: false, Details: "field not found: " + field}
	}
	arr, ok := val.([]any)
	if !ok {
		return CheckResult{Passed: false, Details: "field is not an array"}
	}
	n := len(arr)
	if min, ok := numParam(params, "min"); ok && n < min {
		return CheckResult{Passed: false, Details: "array shorter than min"}
	}
	if max, ok := numParam(params, "max"); ok && n > max {
		return CheckResult{Passed: false, Details: "array longer than max"}
	}
	return CheckResult{Passed: true}
}

func checkFieldExists(output any, params map[string]any) CheckResult {
	raw, _ := params["fields"].([]any)
	for _, f := range raw {
		name, _ := f.(string)
		if _, ok := fieldPath(output, name); !ok {
			return CheckResult{Passed: false, Details: "missing field: " + name}
		}
	}
	return CheckResult{Passed: true}
}

func checkExitCode(output any, params map[string]any) CheckResult {
	expected, _ := numParam(params, "expected")
	m, ok := output.(map[string]any)
	if !ok {
		return CheckResult{Passed: false, Details: "output is not an object"}
	}
	actual, ok := numParam(m, "exitCode")
	if !ok {
		return CheckResult{Passed: false, Details: "output has no exitCode"}
	}
	return CheckResult{Passed: actual == expected}
}

func checkOutputEquals(output any, params map[string]any) CheckResult {
	expected := params["expected"]
	a, errA := crypto.Canonicalize(output)
	b, errB := crypto.Canonicalize(expected)
	if errA != nil || errB != nil {
		return CheckResult{Passed: false, Details: "output is not canonicalizable"}
	}
	return CheckResult{Passed: bytes.Equal(a, b)}
}

func numParam(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// validateAgainstSchema compiles schema as a JSON Schema document and
// validates output against it.
func validateAgainstSchema(schema map[string]any, output any) (CheckResult, error) {
	compiler := jsonschema.NewCompiler()
	const resourceName = "contract-verification-schema.json"
	if err := compiler.AddResource(resourceName, toReader(schema)); err != nil {
		return CheckResult{}, fmt.Errorf("contract: add schema resource: %w", err)
	}
	validator, err := compiler.Compile(resourceName)
	if err != nil {
		return CheckResult{}, fmt.Errorf("contract: compile schema: %w", err)
	}
	if err := validator.Validate(output); err != nil {
		score := 0.0
		return CheckResult{Passed: false, Score: &score, Details: err.Error()}, nil
	}
	score := 1.0
	return CheckResult{Passed: true, Score: &score}, nil
}

func toReader(v any) *bytes.Reader {
	canon, err := crypto.Canonicalize(v)
	if err != nil {
		return bytes.NewReader([]byte("{}"))
	}
	return bytes.NewReader(canon)
}

// VerifyOutput dispatches on spec.Method and checks output against it.
func VerifyOutput(spec VerificationSpec, output any, registry *CheckFunctionRegistry) (CheckResult, error) {
	switch spec.Method {
	case types.VerifySchemaMatch:
		return validateAgainstSchema(spec.Schema, output)

	case types.VerifyDeterministic:
		fn := registry.Lookup(spec.CheckName)
		if fn == nil {
			return CheckResult{Passed: false, Details: "unknown check function: " + spec.CheckName}, nil
		}
		result := fn(output, spec.CheckParams)
		if spec.ExpectedResult != nil {
			got, err1 := crypto.Canonicalize(result)
			want, err2 := crypto.Canonicalize(*spec.ExpectedResult)
			if err1 != nil || err2 != nil || !bytes.Equal(got, want) {
				return CheckResult{Passed: false, Details: "result does not match expectedResult"}, nil
			}
		}
		return result, nil

	case types.VerifyComposite:
		return verifyComposite(spec, output, registry)

	default:
		return CheckResult{}, fmt.Errorf("contract: unknown verification method: %s", spec.Method)
	}
}

func verifyComposite(spec VerificationSpec, output any, registry *CheckFunctionRegistry) (CheckResult, error) {
	results := make([]CheckResult, len(spec.Steps))
	for i, step := range spec.Steps {
		r, err := VerifyOutput(step, output, registry)
		if err != nil {
			return CheckResult{}, err
		}
		results[i] = r
	}

	switch spec.Mode {
	case types.CompositeAllPass:
		for _, r := range results {
			if !r.Passed {
				score := 0.0
				return CheckResult{Passed: false, Score: &score, Details: "at least one step failed"}, nil
			}
		}
		score := 1.0
		return CheckResult{Passed: true, Score: &score}, nil

	case types.CompositeMajority:
		passCount := 0
		for _, r := range results {
			if r.Passed {
				passCount++
			}
		}
		score := float64(passCount) / float64(len(results))
		passed := float64(passCount) > float64(len(results))/2
		return CheckResult{Passed: passed, Score: &score}, nil

	case types.CompositeWeighted:
		if len(spec.Weights) != len(results) {
			return CheckResult{}, fmt.Errorf("contract: weighted composite requires one weight per step")
		}
		threshold := 0.7
		if spec.PassThreshold != nil {
			threshold = *spec.PassThreshold
		}
		var weighted float64
		for i, r := range results {
			weighted += spec.Weights[i] * scoreOf(r)
		}
		passed := weighted >= threshold
		return CheckResult{Passed: passed, Score: &weighted}, nil

	default:
		return CheckResult{}, fmt.Errorf("contract: unknown composite mode: %s", spec.Mode)
	}
}

package tools

import (
	"fmt"
	"regexp"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// ValidationResult is the outcome of static source validation. When Accepted
// is false, Reasons lists every violation found, phrased for the planner to
// read and correct.
type ValidationResult struct {
	Accepted bool     `json:"accepted"`
	Reasons  []string `json:"reasons,omitempty"`
}

// deniedPattern pairs a source pattern with the human-readable reason it is
// rejected.
type deniedPattern struct {
	re     *regexp.Regexp
	reason string
}

// The denylist blocks known-dangerous constructs before a tool is admitted to
// the store. This is advisory-strict: it stops the obvious escapes (dynamic
// code evaluation, host process access, shell invocation), not a determined
// adversary. The sandbox's restricted host surface is the second line of
// defense; OS-level isolation is deliberately out of scope.
var defaultDenylist = []deniedPattern{
	{regexp.MustCompile(`\beval\s*\(`), "eval() is not allowed"},
	{regexp.MustCompile(`\bnew\s+Function\b`), "the Function constructor is not allowed"},
	{regexp.MustCompile(`\bFunction\s*\(`), "the Function constructor is not allowed"},
	{regexp.MustCompile(`\brequire\s*\(`), "module loading via require() is not available"},
	{regexp.MustCompile(`\bimport\s*\(`), "dynamic import is not available"},
	{regexp.MustCompile(`\bprocess\s*\.`), "host process access is not allowed"},
	{regexp.MustCompile(`\bchild_process\b`), "spawning processes is not allowed"},
	{regexp.MustCompile(`\b(?:spawn|execSync|execFile)\s*\(`), "spawning processes is not allowed"},
	{regexp.MustCompile(`\bXMLHttpRequest\b`), "use the provided httpGet/httpPost helpers for HTTP"},
	{regexp.MustCompile(`\bWebSocket\b`), "raw sockets are not available"},
	{regexp.MustCompile(`\b(?:unlinkSync|rmSync|rmdirSync|rimraf)\b`), "filesystem deletion is not allowed"},
	{regexp.MustCompile(`\bglobalThis\s*\[`), "computed global access is not allowed"},
}

var runAssignRe = regexp.MustCompile(`(?m)^\s*(?:var|let|const)?\s*run\s*=\s*(?:async\s+)?(?:function\b|\()`)

// Validator statically inspects candidate tool source before it is admitted
// to the Manifest Store. It never executes the code.
type Validator struct {
	denylist []deniedPattern
}

// NewValidator creates a validator with the default denylist.
func NewValidator() *Validator {
	return &Validator{denylist: defaultDenylist}
}

// Validate checks that source parses as JavaScript, declares a run() entry
// point, and contains no denylisted constructs.
func (v *Validator) Validate(source string) ValidationResult {
	var reasons []string

	if source == "" {
		return ValidationResult{Reasons: []string{"source is empty"}}
	}

	prog, err := parser.ParseFile(nil, "tool.js", source, 0)
	if err != nil {
		return ValidationResult{Reasons: []string{fmt.Sprintf("source does not parse: %v", err)}}
	}

	if !hasRunEntryPoint(prog) && !runAssignRe.MatchString(source) {
		reasons = append(reasons, "source must declare a run(args) function as its entry point")
	}

	for _, denied := range v.denylist {
		if denied.re.MatchString(source) {
			reasons = append(reasons, denied.reason)
		}
	}

	if len(reasons) > 0 {
		return ValidationResult{Reasons: reasons}
	}
	return ValidationResult{Accepted: true}
}

// hasRunEntryPoint reports whether the program declares a top-level function
// named run.
func hasRunEntryPoint(prog *ast.Program) bool {
	for _, stmt := range prog.Body {
		decl, ok := stmt.(*ast.FunctionDeclaration)
		if !ok {
			continue
		}
		if decl.Function != nil && decl.Function.Name != nil &&
			decl.Function.Name.Name.String() == "run" {
			return true
		}
	}
	return false
}

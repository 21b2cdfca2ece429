package diagnostics

// ErrorCode identifies a diagnostic. The letter prefix names the stage:
// L lexical, P syntax, R runtime, H host.
type ErrorCode string

const (
	ErrL001 ErrorCode = "L001" // unexpected character
	ErrL002 ErrorCode = "L002" // unterminated string
	ErrL003 ErrorCode = "L003" // invalid escape
	ErrL004 ErrorCode = "L004" // unterminated block comment
	ErrL005 ErrorCode = "L005" // malformed number

	ErrP001 ErrorCode = "P001" // expected token
	ErrP002 ErrorCode = "P002" // expected expression
	ErrP003 ErrorCode = "P003" // invalid assignment target
	ErrP004 ErrorCode = "P004" // too many locals
	ErrP005 ErrorCode = "P005" // too many upvalues
	ErrP006 ErrorCode = "P006" // too many constants
	ErrP007 ErrorCode = "P007" // jump too far
	ErrP008 ErrorCode = "P008" // too many arguments
	ErrP009 ErrorCode = "P009" // variable redeclared
	ErrP010 ErrorCode = "P010" // local read in own initializer
	ErrP011 ErrorCode = "P011" // self outside class
	ErrP012 ErrorCode = "P012" // super misuse
	ErrP013 ErrorCode = "P013" // return value from initializer
	ErrP014 ErrorCode = "P014" // break/continue outside loop
	ErrP015 ErrorCode = "P015" // class inherits from itself
	ErrP016 ErrorCode = "P016" // delete target
	ErrP017 ErrorCode = "P017" // too many literal elements

	ErrR001 ErrorCode = "R001" // operand type mismatch
	ErrR002 ErrorCode = "R002" // arity mismatch
	ErrR003 ErrorCode = "R003" // undefined variable
	ErrR004 ErrorCode = "R004" // index out of range
	ErrR005 ErrorCode = "R005" // import loop
	ErrR006 ErrorCode = "R006" // explicit panic
	ErrR007 ErrorCode = "R007" // assertion failed
	ErrR008 ErrorCode = "R008" // not callable
	ErrR009 ErrorCode = "R009" // stack overflow
	ErrR010 ErrorCode = "R010" // module not found
	ErrR011 ErrorCode = "R011" // member not found
	ErrR012 ErrorCode = "R012" // not indexable / not assignable
	ErrR013 ErrorCode = "R013" // nil index
	ErrR014 ErrorCode = "R014" // not iterable
	ErrR015 ErrorCode = "R015" // integral operand required
	ErrR016 ErrorCode = "R016" // inherit from non-class
	ErrR017 ErrorCode = "R017" // execution cancelled
	ErrR018 ErrorCode = "R018" // zero range step

	ErrH001 ErrorCode = "H001" // host function failure
	ErrH002 ErrorCode = "H002" // native module load failure
)

type codeInfo struct {
	Kind        Kind
	Template    string
	Explanation string
	Example     string
}

var codes = map[ErrorCode]codeInfo{
	ErrL001: {Kind: Compile, Template: "unexpected character %q"},
	ErrL002: {Kind: Compile, Template: "unterminated string",
		Explanation: "A string literal must be closed with the same quote character that opened it before the end of the file."},
	ErrL003: {Kind: Compile, Template: "invalid escape sequence \\%s",
		Explanation: "Supported escapes are \\n \\t \\r \\0 \\\\ \\' \\\" \\xHH and \\( for interpolation.",
		Example:     `"tab:\t value: \(x)"`},
	ErrL004: {Kind: Compile, Template: "unterminated block comment",
		Explanation: "Block comments start with /# and end with #/. They nest, so every opener needs its own closer."},
	ErrL005: {Kind: Compile, Template: "malformed number %q"},

	ErrP001: {Kind: Compile, Template: "expected %s, got %s"},
	ErrP002: {Kind: Compile, Template: "expected expression, got %s"},
	ErrP003: {Kind: Compile, Template: "invalid assignment target",
		Explanation: "Only variables, properties and index expressions can be assigned to.",
		Example:     "x = 1; t.name = 2; a[0] = 3;"},
	ErrP004: {Kind: Compile, Template: "too many local variables in function"},
	ErrP005: {Kind: Compile, Template: "too many closure variables in function"},
	ErrP006: {Kind: Compile, Template: "too many constants in one chunk"},
	ErrP007: {Kind: Compile, Template: "jump too far"},
	ErrP008: {Kind: Compile, Template: "too many arguments (max %d)"},
	ErrP009: {Kind: Compile, Template: "variable %q already declared in this scope"},
	ErrP010: {Kind: Compile, Template: "cannot read local variable %q in its own initializer"},
	ErrP011: {Kind: Compile, Template: "cannot use %s outside of a class"},
	ErrP012: {Kind: Compile, Template: "%s",
		Explanation: "super is only valid inside methods of a class that declares a superclass, and must be followed by '.' and a method name.",
		Example:     "class B : A { init() { super.init(); } }"},
	ErrP013: {Kind: Compile, Template: "cannot return a value from an initializer",
		Explanation: "Initializers always produce the new instance. Declare the initializer as init? to allow returning nil on failure."},
	ErrP014: {Kind: Compile, Template: "cannot use %s outside of a loop"},
	ErrP015: {Kind: Compile, Template: "a class cannot inherit from itself"},
	ErrP016: {Kind: Compile, Template: "delete needs a property or index expression",
		Example: "delete t.name; delete t[key];"},
	ErrP017: {Kind: Compile, Template: "too many elements in %s (max %d)"},

	ErrR001: {Kind: Runtime, Template: "%s"},
	ErrR002: {Kind: Runtime, Template: "%s expects %d arguments but got %d"},
	ErrR003: {Kind: Runtime, Template: "undefined variable %q"},
	ErrR004: {Kind: Runtime, Template: "index %s out of range for length %d"},
	ErrR005: {Kind: Runtime, Template: "import loop detected: %s",
		Explanation: "A module imported, directly or through other modules, a module that is still being initialized.",
		Example:     "a.kn: import(\"./b\");  b.kn: import(\"./a\");"},
	ErrR006: {Kind: Runtime, Template: "%s"},
	ErrR007: {Kind: Runtime, Template: "assertion failed: %s"},
	ErrR008: {Kind: Runtime, Template: "cannot call %s"},
	ErrR009: {Kind: Runtime, Template: "stack overflow"},
	ErrR010: {Kind: Runtime, Template: "module %q not found"},
	ErrR011: {Kind: Runtime, Template: "%s has no member %q"},
	ErrR012: {Kind: Runtime, Template: "%s"},
	ErrR013: {Kind: Runtime, Template: "cannot index with nil"},
	ErrR014: {Kind: Runtime, Template: "cannot iterate over %s"},
	ErrR015: {Kind: Runtime, Template: "%s requires integral operands, got %s and %s"},
	ErrR016: {Kind: Runtime, Template: "superclass must be a class, got %s"},
	ErrR017: {Kind: Runtime, Template: "execution cancelled: %s"},
	ErrR018: {Kind: Runtime, Template: "range step must not be zero"},

	ErrH001: {Kind: Host, Template: "%s"},
	ErrH002: {Kind: Host, Template: "cannot load native module %q: %s"},
}

func lookup(code ErrorCode) codeInfo {
	if info, ok := codes[code]; ok {
		return info
	}
	return codeInfo{Kind: Runtime, Template: "%s"}
}

// Explain returns the long-form explanation and example for code.
func Explain(code ErrorCode) (explanation, example string) {
	info := lookup(code)
	return info.Explanation, info.Example
}

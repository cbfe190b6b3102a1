package xerrors

// 线性代数。
var (
	ErrEmptyData           = New(ErrInvalidArg, 400001, "empty data", "input data must not be empty", nil)
	ErrDimMismatch         = New(ErrInvalidArg, 400007, "dimension mismatch", "matrix or vector dimensions do not match", nil)
	ErrNotSquare           = New(ErrInvalidArg, 400008, "matrix must be square", "input matrix is not square", nil)
	ErrNotPositiveDefinite = New(ErrNumerical, 400009, "matrix is not positive definite", "input matrix must be positive definite", nil)
	ErrSingularMatrix      = New(ErrNumerical, 500010, "singular matrix", "jacobian is not invertible", nil)
	ErrMathConvergence     = New(ErrNumerical, 500002, "math convergence failed", "algorithm failed to converge", nil)
)

// 情景与情景生成。
var (
	ErrMissingRiskFactor = New(ErrMissingData, 404101, "missing risk factor", "", nil)
	ErrKeyListFrozen     = New(ErrConfiguration, 410101, "key list frozen", "shared key list cannot grow after the first scenario is emitted", nil)
	ErrUnknownKeyType    = New(ErrInvalidArg, 400101, "unknown risk factor key type", "", nil)
	ErrInvalidKey        = New(ErrInvalidArg, 400102, "invalid risk factor key", "", nil)
	ErrEmptyDateGrid     = New(ErrConfiguration, 410102, "empty date grid", "date grid must contain at least one date", nil)
	ErrInvalidDateGrid   = New(ErrConfiguration, 410103, "invalid date grid", "", nil)
	ErrUnknownGridDate   = New(ErrMissingData, 404102, "date not on grid", "", nil)
	ErrStepMismatch      = New(ErrConfiguration, 410104, "step mismatch", "", nil)
	ErrPathExhausted     = New(ErrConfiguration, 410105, "path exhausted", "step count exceeds number of dates", nil)
	ErrNotReset          = New(ErrConfiguration, 410106, "generator not reset", "call Reset before Next", nil)
	ErrMalformedCSV      = New(ErrInvalidArg, 400103, "malformed scenario file", "", nil)
)

// NPV 立方体及其组合。
var (
	ErrDuplicateID        = New(ErrConfiguration, 410201, "duplicate id", "", nil)
	ErrAmbiguousWrite     = New(ErrConfiguration, 410202, "ambiguous write target", "", nil)
	ErrIncompatibleCubes  = New(ErrConfiguration, 410203, "incompatible cubes", "", nil)
	ErrUnknownID          = New(ErrMissingData, 404201, "unknown id", "", nil)
	ErrUnknownDate        = New(ErrMissingData, 404202, "unknown date", "", nil)
	ErrIndexOutOfRange    = New(ErrMissingData, 404203, "index out of range", "", nil)
	ErrInvalidDimension   = New(ErrConfiguration, 410204, "invalid cube dimension", "", nil)
	ErrCorruptCube        = New(ErrInvalidArg, 400201, "corrupt cube file", "", nil)
	ErrInvalidAccumulator = New(ErrConfiguration, 410205, "invalid accumulator", "", nil)
)

// 敏感度与零息转平价。
var (
	ErrUnsupportedFactor    = New(ErrConfiguration, 410301, "unsupported risk factor for par conversion", "", nil)
	ErrMissingInstrument    = New(ErrMissingData, 404301, "missing calibration instrument", "", nil)
	ErrUnsupportedInstrType = New(ErrConfiguration, 410302, "unsupported instrument type", "", nil)
	ErrInvalidShift         = New(ErrConfiguration, 410303, "invalid shift size", "", nil)
)

// SIMM 与压力测试。
var (
	ErrCurrencyMismatch  = New(ErrConfiguration, 410401, "currency mismatch", "", nil)
	ErrUnknownNettingSet = New(ErrMissingData, 404401, "unknown netting set", "", nil)
	ErrInvalidSelector   = New(ErrConfiguration, 410402, "invalid date/sample selector", "date and sample index must both be set or both be nil", nil)
	ErrZeroDivision      = New(ErrNumerical, 500401, "division by zero", "", nil)
	ErrStressScenario    = New(ErrConfiguration, 410403, "invalid stress scenario", "", nil)
)

package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrDisabled     = fmt.Errorf("disabled")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the domain layer.
var (
	// Rules errors.
	ErrIllegalMove    = fmt.Errorf("illegal move")
	ErrNotYourPiece   = fmt.Errorf("point does not hold a piece of the player to move")
	ErrOffBoard       = fmt.Errorf("position is not on a board point")
	ErrGameOver       = fmt.Errorf("game is already decided")
	ErrSnapshotFormat = fmt.Errorf("malformed snapshot")

	// Search errors.
	ErrNoMoves       = fmt.Errorf("no legal successor")
	ErrSearchTimeout = fmt.Errorf("search deadline exceeded")

	// WASM host errors.
	ErrExportMissing   = fmt.Errorf("required export missing")
	ErrExportSignature = fmt.Errorf("export signature mismatch")
	ErrGuestTrap       = fmt.Errorf("guest trapped")
	ErrMemoryAccess    = fmt.Errorf("guest memory access out of bounds")
	ErrModuleLoad      = fmt.Errorf("module load failed")
	ErrHostClosed      = fmt.Errorf("host instance closed")
	ErrURLBlocked      = fmt.Errorf("module url blocked")

	// Storage errors.
	ErrGameNotFound = fmt.Errorf("game record not found")
	ErrStore        = fmt.Errorf("store operation failed")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrForbidden         = fmt.Errorf("permission denied")
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")

	ErrConfigLoad = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Game.ButtonUp")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "host", "store"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrSearchTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and RPC replies.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeIllegalMove       ErrorCode = "ILLEGAL_MOVE"
	CodeNotYourPiece      ErrorCode = "NOT_YOUR_PIECE"
	CodeOffBoard          ErrorCode = "OFF_BOARD"
	CodeGameOver          ErrorCode = "GAME_OVER"
	CodeSnapshotFormat    ErrorCode = "SNAPSHOT_FORMAT"
	CodeNoMoves           ErrorCode = "NO_MOVES"
	CodeSearchTimeout     ErrorCode = "SEARCH_TIMEOUT"
	CodeExportMissing     ErrorCode = "EXPORT_MISSING"
	CodeExportSignature   ErrorCode = "EXPORT_SIGNATURE"
	CodeGuestTrap         ErrorCode = "GUEST_TRAP"
	CodeMemoryAccess      ErrorCode = "MEMORY_ACCESS"
	CodeModuleLoad        ErrorCode = "MODULE_LOAD"
	CodeHostClosed        ErrorCode = "HOST_CLOSED"
	CodeURLBlocked        ErrorCode = "URL_BLOCKED"
	CodeGameNotFound      ErrorCode = "GAME_NOT_FOUND"
	CodeStore             ErrorCode = "STORE"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeWASMTimeout   ErrorCode = "WASM_TIMEOUT"
	CodeAgentTimeout  ErrorCode = "AGENT_TIMEOUT"
	CodeSessionAbsent ErrorCode = "SESSION_NOT_FOUND"

	// Category error codes, used when no specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeDisabled     ErrorCode = "DISABLED"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrDisabled:     CodeDisabled,
	ErrInvalidInput: CodeInvalidInput,

	ErrIllegalMove:       CodeIllegalMove,
	ErrNotYourPiece:      CodeNotYourPiece,
	ErrOffBoard:          CodeOffBoard,
	ErrGameOver:          CodeGameOver,
	ErrSnapshotFormat:    CodeSnapshotFormat,
	ErrNoMoves:           CodeNoMoves,
	ErrSearchTimeout:     CodeSearchTimeout,
	ErrExportMissing:     CodeExportMissing,
	ErrExportSignature:   CodeExportSignature,
	ErrGuestTrap:         CodeGuestTrap,
	ErrMemoryAccess:      CodeMemoryAccess,
	ErrModuleLoad:        CodeModuleLoad,
	ErrHostClosed:        CodeHostClosed,
	ErrURLBlocked:        CodeURLBlocked,
	ErrGameNotFound:      CodeGameNotFound,
	ErrStore:             CodeStore,
	ErrGatewayAuthFailed: CodeGatewayAuth,
	ErrRPCMethodNotFound: CodeRPCMethodNotFound,
	ErrRPCInvalidPayload: CodeRPCInvalidPayload,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrForbidden:         CodeForbidden,
	ErrConfigLoad:        CodeConfigLoad,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"store":   CodeGameNotFound,
		"gateway": CodeSessionAbsent,
	},
	ErrTimeout: {
		"host":  CodeWASMTimeout,
		"agent": CodeAgentTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	// errorCodeMap iteration order is random; check specific sentinels before
	// categories so that wrapped chains resolve deterministically.
	for _, sentinel := range specificFirst {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	return CodeUnknown
}

var specificFirst = []error{
	ErrIllegalMove, ErrNotYourPiece, ErrOffBoard, ErrGameOver, ErrSnapshotFormat,
	ErrNoMoves, ErrSearchTimeout,
	ErrExportMissing, ErrExportSignature, ErrGuestTrap, ErrMemoryAccess, ErrURLBlocked, ErrModuleLoad, ErrHostClosed,
	ErrGameNotFound, ErrStore,
	ErrGatewayAuthFailed, ErrRPCMethodNotFound, ErrRPCInvalidPayload, ErrRateLimit, ErrAuthInvalid, ErrForbidden,
	ErrConfigLoad,
	ErrNotFound, ErrDuplicate, ErrTimeout, ErrLimitReached, ErrDisabled, ErrInvalidInput,
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}

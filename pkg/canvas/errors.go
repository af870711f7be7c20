package canvas

import "errors"

// Kind is a stable category for programmatic error handling.
// Callers branch on Kind or match sentinels with errors.Is, never on Error() text.
type Kind string

const (
	// KindValidation marks caller errors; never retried automatically.
	KindValidation Kind = "Validation"

	// KindAuthorization marks failed identity checks. These fail closed.
	KindAuthorization Kind = "Authorization"

	// KindRateLimit marks cooldown rejections, recoverable by waiting.
	KindRateLimit Kind = "RateLimit"

	// KindTier marks protocol-sequencing errors between the durable and fast tiers.
	KindTier Kind = "Tier"

	// KindState marks create-once collisions and missing records.
	KindState Kind = "State"
)

// Error is the canvas structured error type. The package exposes one
// value per Code; wrap them with fmt.Errorf("...: %w", err) to add context.
type Error struct {
	Code    string
	Kind    Kind
	Message string

	// parent lets a narrower code also match a broader one
	// (InvalidPixelCoord is an OutOfBounds).
	parent *Error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// Is reports whether target is e or one of its parents.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	for p := e; p != nil; p = p.parent {
		if p == t {
			return true
		}
	}
	return false
}

var (
	ErrOutOfBounds = &Error{Code: "OutOfBounds", Kind: KindValidation,
		Message: "coordinates outside the canvas"}
	ErrInvalidPixelCoord = &Error{Code: "InvalidPixelCoord", Kind: KindValidation,
		Message: "invalid pixel coordinates", parent: ErrOutOfBounds}
	ErrInvalidShardCoord = &Error{Code: "InvalidShardCoord", Kind: KindValidation,
		Message: "invalid shard coordinates", parent: ErrOutOfBounds}
	ErrInvalidColor = &Error{Code: "InvalidColor", Kind: KindValidation,
		Message: "invalid color"}
	ErrShardMismatch = &Error{Code: "ShardMismatch", Kind: KindValidation,
		Message: "shard coordinates don't match pixel location"}

	ErrInvalidAuth = &Error{Code: "InvalidAuth", Kind: KindAuthorization,
		Message: "invalid authentication"}

	ErrCooldownActive = &Error{Code: "CooldownActive", Kind: KindRateLimit,
		Message: "cooldown active: limit reached"}

	ErrWrongTier = &Error{Code: "WrongTier", Kind: KindTier,
		Message: "resource is owned by another tier"}
	ErrAlreadyDelegated = &Error{Code: "AlreadyDelegated", Kind: KindTier,
		Message: "resource is already delegated"}
	ErrNotDelegated = &Error{Code: "NotDelegated", Kind: KindTier,
		Message: "resource is not delegated"}

	ErrAlreadyExists = &Error{Code: "AlreadyExists", Kind: KindState,
		Message: "resource already exists"}
	ErrNotFound = &Error{Code: "NotFound", Kind: KindState,
		Message: "resource not found"}
)

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

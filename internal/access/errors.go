package access

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of failure classes surfaced to callers.
type Kind uint8

const (
	KindInternal Kind = iota
	KindUserNotFound
	KindPassageNotFound
	KindTransitNotFound
	KindAuthorizationNotFound
	KindUnauthorized
	KindTokenInvalid
	KindLoginFailed
	KindForbidden
	KindForbiddenAdminRole
	KindForbiddenAdminOrPassageRole
	KindForbiddenAdminOrUserRole
	KindForbiddenSuspended
	KindValidation
	KindInvalidDateRange
	KindStartAfterEnd
	KindInvalidFormat
	KindTransitCreationFailed
	KindTransitUpdateFailed
	KindTransitDeletionFailed
	KindStatsFailed
	KindAuthorizationCreationFailed
	KindAuthorizationConflict
	KindSuspensionBookkeeping
	kindCount
)

type descriptor struct {
	name    string
	status  int
	message string
}

var catalog = [kindCount]descriptor{
	KindInternal:                    {"Internal", http.StatusInternalServerError, "Internal Server Error"},
	KindUserNotFound:                {"UserNotFound", http.StatusNotFound, "User Not Found"},
	KindPassageNotFound:             {"PassageNotFound", http.StatusNotFound, "Passage Not Found"},
	KindTransitNotFound:             {"TransitNotFound", http.StatusNotFound, "Transit Not Found"},
	KindAuthorizationNotFound:       {"AuthorizationNotFound", http.StatusNotFound, "Authorization not Found."},
	KindUnauthorized:                {"Unauthorized", http.StatusUnauthorized, "Unauthorized"},
	KindTokenInvalid:                {"JwtNotValid", http.StatusUnauthorized, "JWT Not Valid"},
	KindLoginFailed:                 {"LoginFailed", http.StatusUnauthorized, "Login Failed: incorrect email or password"},
	KindForbidden:                   {"Forbidden", http.StatusForbidden, "Forbidden"},
	KindForbiddenAdminRole:          {"ForbiddenAdminRole", http.StatusForbidden, "Access denied. Admin privileges are required."},
	KindForbiddenAdminOrPassageRole: {"ForbiddenAdminOrPassageRole", http.StatusForbidden, "Access denied. Admin or passage user privileges are required."},
	KindForbiddenAdminOrUserRole:    {"ForbiddenAdminOrUserRole", http.StatusForbidden, "Access denied. Admin or user privileges are required."},
	KindForbiddenSuspended:          {"ForbiddenSuspended", http.StatusForbidden, "Access denied. User suspended."},
	KindValidation:                  {"ValidationError", http.StatusBadRequest, "Validation Error"},
	KindInvalidDateRange:            {"InvalidDateRange", http.StatusBadRequest, "Invalid date range."},
	KindStartAfterEnd:               {"StartDateGreaterThanEndDate", http.StatusBadRequest, "Start date greater than end date."},
	KindInvalidFormat:               {"InvalidFormat", http.StatusBadRequest, "Invalid format requested."},
	KindTransitCreationFailed:       {"TransitCreationFailed", http.StatusBadRequest, "Transit creation Failed"},
	KindTransitUpdateFailed:         {"TransitUpdateFailed", http.StatusBadRequest, "Transit Update Failed"},
	KindTransitDeletionFailed:       {"TransitDeletionFailed", http.StatusBadRequest, "Transit Deletion Failed"},
	KindStatsFailed:                 {"AccessStatsRetrieveFailed", http.StatusBadRequest, "Access stats Failed"},
	KindAuthorizationCreationFailed: {"AuthorizationCreationFailed", http.StatusBadRequest, "Authorization Creation Failed"},
	KindAuthorizationConflict:       {"AuthorizationConflict", http.StatusConflict, "Authorization already exists"},
	KindSuspensionBookkeeping:       {"SuspensionBookkeepingFailed", http.StatusInternalServerError, "Suspension bookkeeping failed"},
}

func (k Kind) lookup() descriptor {
	if k >= kindCount {
		return catalog[KindInternal]
	}
	return catalog[k]
}

func (k Kind) String() string  { return k.lookup().name }
func (k Kind) Status() int     { return k.lookup().status }
func (k Kind) Message() string { return k.lookup().message }

// Error is a classified failure. Err, when set, is the underlying cause
// and is never shown to API callers.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind.Message(), e.Err)
	}
	return e.Kind.Message()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so wrapped errors compare equal
// to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Wrap classifies err under kind. Errors that already carry a kind are
// returned unchanged.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind carried by err, KindInternal otherwise.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

var (
	ErrUserNotFound          = &Error{Kind: KindUserNotFound}
	ErrPassageNotFound       = &Error{Kind: KindPassageNotFound}
	ErrTransitNotFound       = &Error{Kind: KindTransitNotFound}
	ErrAuthorizationNotFound = &Error{Kind: KindAuthorizationNotFound}
	ErrAuthorizationConflict = &Error{Kind: KindAuthorizationConflict}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrSuspended             = &Error{Kind: KindForbiddenSuspended}
	ErrValidation            = &Error{Kind: KindValidation}
	ErrInvalidDateRange      = &Error{Kind: KindInvalidDateRange}
	ErrStartAfterEnd         = &Error{Kind: KindStartAfterEnd}
	ErrInvalidFormat         = &Error{Kind: KindInvalidFormat}
	ErrLoginFailed           = &Error{Kind: KindLoginFailed}
)

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of domain failures surfaced to synchronous callers
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValueMissing
	KindValueInvalid
	KindEnvironmentMismatch
	KindOwnershipTypeInvalid
	KindProductUnknown
	KindNoFamily
	KindNotFamilyHead
	KindReceiptUnparsable
	KindNoSubscriptions
	KindRateLimited
)

var errorKindInfo = map[ErrorKind]struct {
	code   string
	status int
}{
	KindInternal:             {"ER_INTERNAL", http.StatusInternalServerError},
	KindValueMissing:         {"ER_VALUE_MISSING", http.StatusBadRequest},
	KindValueInvalid:         {"ER_VALUE_INVALID", http.StatusBadRequest},
	KindEnvironmentMismatch:  {"ER_ENVIRONMENT_MISMATCH", http.StatusBadRequest},
	KindOwnershipTypeInvalid: {"ER_OWNERSHIP_TYPE_INVALID", http.StatusBadRequest},
	KindProductUnknown:       {"ER_PRODUCT_UNKNOWN", http.StatusBadRequest},
	KindNoFamily:             {"ER_PERMISSION_NO_FAMILY", http.StatusForbidden},
	KindNotFamilyHead:        {"ER_PERMISSION_NOT_FAMILY_HEAD", http.StatusForbidden},
	KindReceiptUnparsable:    {"ER_RECEIPT_UNPARSABLE", http.StatusBadRequest},
	KindNoSubscriptions:      {"ER_RECEIPT_NO_SUBSCRIPTIONS", http.StatusBadRequest},
	KindRateLimited:          {"ER_RATE_LIMITED", http.StatusTooManyRequests},
}

// Code returns the stable string code of the kind
func (k ErrorKind) Code() string {
	if info, ok := errorKindInfo[k]; ok {
		return info.code
	}
	return errorKindInfo[KindInternal].code
}

// HTTPStatus returns the response status used when the kind reaches a client
func (k ErrorKind) HTTPStatus() int {
	if info, ok := errorKindInfo[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// DomainError represents a business rule failure with a stable code
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError builds a domain error of the given kind
func NewDomainError(kind ErrorKind, format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsDomainError extracts a domain error from err, classifying anything else as internal
func AsDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{Kind: KindInternal, Message: "internal error", Err: err}
}

// IsKind reports whether err is a domain error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Kind == kind
}

package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindCodes(t *testing.T) {
	assert.Equal(t, "ER_PERMISSION_NOT_FAMILY_HEAD", KindNotFamilyHead.Code())
	assert.Equal(t, http.StatusForbidden, KindNotFamilyHead.HTTPStatus())
	assert.Equal(t, "ER_RATE_LIMITED", KindRateLimited.Code())
	assert.Equal(t, http.StatusTooManyRequests, KindRateLimited.HTTPStatus())
	assert.Equal(t, "ER_INTERNAL", ErrorKind(999).Code())
	assert.Equal(t, http.StatusInternalServerError, ErrorKind(999).HTTPStatus())
}

func TestAsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("reconcile: %w", NewDomainError(KindProductUnknown, "productId %q", "x"))
	domainErr := AsDomainError(wrapped)
	assert.Equal(t, KindProductUnknown, domainErr.Kind)
	assert.True(t, IsKind(wrapped, KindProductUnknown))

	cause := errors.New("disk full")
	internal := AsDomainError(cause)
	assert.Equal(t, KindInternal, internal.Kind)
	assert.ErrorIs(t, internal, cause)
}

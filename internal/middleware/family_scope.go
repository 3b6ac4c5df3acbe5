package middleware

import (
	"net/http"

	"hound-api/internal/response"
	"hound-api/internal/services"
	"hound-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

const requestScopeKey = "request_scope"

// FamilyScope admits a request only when the path user belongs to the path family,
// then stores the resulting RequestScope for the handlers.
func FamilyScope(families services.FamilyDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		familyID := c.Param("familyId")

		if userID == "" || familyID == "" {
			response.AbortWithError(c, http.StatusBadRequest, services.KindValueMissing.Code(), "userId and familyId are required")
			return
		}

		isMember, err := families.IsFamilyMember(c.Request.Context(), userID, familyID)
		if err != nil {
			logging.Errorf("Family scope check failed - user: %s, family: %s, error: %v", userID, familyID, err)
			response.AbortWithError(c, http.StatusInternalServerError, services.KindInternal.Code(), "internal error")
			return
		}
		if !isMember {
			response.AbortWithError(c, services.KindNoFamily.HTTPStatus(), services.KindNoFamily.Code(), "user is not a member of this family")
			return
		}

		c.Set(requestScopeKey, services.RequestScope{UserID: userID, FamilyID: familyID})
		c.Next()
	}
}

// Scope returns the RequestScope stored by FamilyScope
func Scope(c *gin.Context) (services.RequestScope, bool) {
	value, exists := c.Get(requestScopeKey)
	if !exists {
		return services.RequestScope{}, false
	}
	scope, ok := value.(services.RequestScope)
	return scope, ok
}

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/univ-lab/timetable-api/internal/middleware"
	"github.com/univ-lab/timetable-api/internal/models"
)

// claimsFromContext returns the authenticated client's claims, or nil on
// unguarded routes.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, ok := c.Get(middleware.ContextUserKey); ok {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}

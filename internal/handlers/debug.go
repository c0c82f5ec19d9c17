package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lan-chat/internal/middleware"
	"lan-chat/internal/observability"
	"lan-chat/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, auditor Auditor, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if auditor == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		auditor.Emit(c.Request.Context(), observability.RequestID(c), middleware.UserID(c), telemetry.AuditPayload{
			Action:  "audit_test",
			Details: "debug endpoint",
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

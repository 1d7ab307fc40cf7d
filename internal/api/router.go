package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"migrant-health-access/backend/internal/security"
)

// NewRouter wires the HTTP endpoints. The dev OTP endpoint is registered only
// when the handler carries a dev OTP reader.
func NewRouter(h *Handler, tokens *security.TokenProvider) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/api/auth/register", h.register)
	r.POST("/api/auth/login", h.login)

	authed := r.Group("/api")
	authed.Use(AuthRequired(tokens))
	{
		authed.POST("/access/request", h.requestAccess)
		authed.POST("/access/verify", h.verify)
		authed.GET("/access/status/:migrantId", h.accessStatus)
		authed.GET("/access/records/:migrantId", h.listRecords)

		authed.POST("/records", h.createRecord)

		admin := authed.Group("")
		admin.Use(AdminRequired())
		{
			admin.POST("/migrants", h.createMigrant)
		}

		if h.devOTP != nil {
			authed.GET("/dev/otp", h.devGetOTP)
		}
	}

	return r
}

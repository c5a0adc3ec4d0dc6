package facade

import (
	"github.com/gin-gonic/gin"

	"github.com/agenthub/hub/internal/platform/apierr"
)

// writeErr translates an apierr value (or a plain error) into the HTTP
// status/JSON body contract every route in this package shares (§7).
func writeErr(c *gin.Context, err error) {
	status, kind, message := apierr.StatusMessage(err)
	c.AbortWithStatusJSON(status, gin.H{"kind": kind, "message": message})
}

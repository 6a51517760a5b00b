package middleware

import "github.com/gin-gonic/gin"

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"ok": 0, "code": code, "message": message})
}

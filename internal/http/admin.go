package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sujalbistaa/confessions/internal/config"
	"github.com/sujalbistaa/confessions/internal/models"
)

const (
	adminSessionName   = "confessions-admin"
	adminSessionMaxAge = 12 * 60 * 60
)

// AdminSessions stores the admin login in a signed cookie scoped to the
// admin API. secure restricts the cookie to HTTPS.
func AdminSessions(admin config.AdminConfig, secure bool) gin.HandlerFunc {
	store := cookie.NewStore([]byte(admin.SessionSecret))
	store.Options(sessionOptions(secure, adminSessionMaxAge))
	return sessions.Sessions(adminSessionName, store)
}

func sessionOptions(secure bool, maxAge int) sessions.Options {
	return sessions.Options{
		Path:     "/api/admin",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// AdminLogin checks the password against the configured bcrypt hash and
// marks the session as admin.
func (e *Env) AdminLogin(passwordHash string) gin.HandlerFunc {
	hash := []byte(passwordHash)
	return func(c *gin.Context) {
		var input models.LoginInput
		if err := c.ShouldBindJSON(&input); err != nil || input.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password required"})
			return
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(input.Password)); err != nil {
			e.Log.Warn("admin login failed",
				zap.String("client_ip", c.ClientIP()),
				zap.String("request_id", c.GetString(requestIDKey)))
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden: Invalid password"})
			return
		}

		session := sessions.Default(c)
		session.Set(sessionAdminKey, true)
		if err := session.Save(); err != nil {
			e.internalError(c, err, "Failed to save session")
			return
		}
		e.Log.Info("admin logged in", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// AdminLogout expires the session cookie with the attributes it was set with.
func (e *Env) AdminLogout(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		session.Clear()
		session.Options(sessionOptions(secure, -1))
		if err := session.Save(); err != nil {
			e.internalError(c, err, "Failed to save session")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

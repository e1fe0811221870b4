package api

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const (
	SessionCookieName = "vs_session"
	sessionKeyHistory = "history"
	maxHistory        = 20
	sessionMaxAge     = 30 * 24 * 60 * 60
)

// SessionMiddleware は署名付きクッキーのセッションを有効にします。
func SessionMiddleware(secret string, secure bool) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionCookieName, store)
}

// rememberJob はこのブラウザから投入したジョブIDを新しい順に記録します。
func rememberJob(c *gin.Context, jobID string) error {
	session := sessions.Default(c)
	history := append([]string{jobID}, readHistory(session)...)
	if len(history) > maxHistory {
		history = history[:maxHistory]
	}
	session.Set(sessionKeyHistory, strings.Join(history, ","))
	return session.Save()
}

func readHistory(session sessions.Session) []string {
	raw, _ := session.Get(sessionKeyHistory).(string)
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, ",")
}

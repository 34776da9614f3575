package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout ограничивает время обработки запроса. Потоковые маршруты (SSE)
// в exclude живут до отключения клиента.
func Timeout(d time.Duration, exclude ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exclude))
	for _, p := range exclude {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.FullPath()]; ok || d <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

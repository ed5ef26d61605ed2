package main

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"gastos/models"
	"gastos/pkg/alerts"
	"gastos/pkg/bootstrap"
	"gastos/pkg/extract"
	"gastos/pkg/logger"
	"gastos/pkg/pending"
	"gastos/pkg/storage"
)

// server holds the dependencies shared by every handler.
type server struct {
	db        *gorm.DB
	jwtSecret []byte
	storage   storage.Storage
	pending   *pending.Store
	scorer    *extract.Scorer
	alerts    *alerts.Evaluator
	now       func() time.Time

	// pipeline is swapped when the category table changes.
	pipeline      atomic.Pointer[bootstrap.Pipeline]
	buildPipeline func(ctx context.Context) (*bootstrap.Pipeline, error)
}

func (s *server) extractor() *extract.Extractor {
	return s.pipeline.Load().Extractor
}

// reloadPipeline rebuilds the extractor after a category edit. On failure the
// previous pipeline stays in place.
func (s *server) reloadPipeline(ctx context.Context) error {
	p, err := s.buildPipeline(ctx)
	if err != nil {
		return err
	}
	s.pipeline.Store(p)
	return nil
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.POST("/register", s.registerHandler)
	r.POST("/login", s.loginHandler)
	r.POST("/refresh", s.refreshHandler)
	r.POST("/revoke_refresh", s.revokeRefreshHandler)

	authGroup := r.Group("")
	authGroup.Use(s.jwtAuthMiddleware())
	authGroup.GET("/me", s.meHandler)

	authGroup.GET("/companies", s.listCompaniesHandler)
	authGroup.POST("/companies", s.createCompanyHandler)
	authGroup.PUT("/companies/:id", s.updateCompanyHandler)
	authGroup.DELETE("/companies/:id", s.deleteCompanyHandler)

	authGroup.GET("/categories", s.listCategoriesHandler)
	authGroup.POST("/categories", s.createCategoryHandler)

	authGroup.POST("/receipts/extract", s.extractReceiptsHandler)
	authGroup.GET("/receipts/pending", s.listPendingHandler)
	authGroup.DELETE("/receipts/pending/:client_id", s.discardPendingHandler)
	authGroup.POST("/receipts/validate", s.validateReceiptHandler)
	authGroup.GET("/receipts/export", s.exportReceiptsHandler)
	authGroup.POST("/receipts", s.createReceiptHandler)
	authGroup.GET("/receipts", s.listReceiptsHandler)
	authGroup.GET("/receipts/:id", s.getReceiptHandler)
	authGroup.PUT("/receipts/:id", s.updateReceiptHandler)
	authGroup.DELETE("/receipts/:id", s.deleteReceiptHandler)

	authGroup.GET("/documents/:id", s.downloadDocumentHandler)

	authGroup.GET("/dashboard", s.dashboardHandler)
	authGroup.GET("/dashboard/chart.png", s.dashboardChartHandler)

	authGroup.GET("/alert-rules", s.listAlertRulesHandler)
	authGroup.POST("/alert-rules", s.createAlertRuleHandler)
	authGroup.PATCH("/alert-rules/:id/toggle", s.toggleAlertRuleHandler)
	authGroup.DELETE("/alert-rules/:id", s.deleteAlertRuleHandler)
}

// requestLogger tags every request with an id and logs it when done. The
// tagged logger is stored in the request context for handlers and the scanner.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		l := logger.Log.With().Str("request_id", reqID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), l))
		c.Header("X-Request-ID", reqID)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		if status >= http.StatusInternalServerError {
			ev = l.Error()
		} else if status >= http.StatusBadRequest {
			ev = l.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(authHeader) < 8 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		c.Set("username", username)
		if role != "" {
			c.Set("role", role)
		}
		c.Next()
	}
}

// currentUser loads the user named by the token. It writes a 401 and returns
// false when the account is gone.
func (s *server) currentUser(c *gin.Context) (*models.User, bool) {
	uname := c.GetString("username")
	if uname == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil, false
	}
	var user models.User
	if err := s.db.Preload("Role").Where("username = ?", uname).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil, false
	}
	return &user, true
}

func isAdmin(c *gin.Context) bool {
	return c.GetString("role") == models.RoleAdministrator
}

// owned restricts q to rows of user unless the caller is an administrator.
func owned(c *gin.Context, q *gorm.DB, user *models.User) *gorm.DB {
	if isAdmin(c) {
		return q
	}
	return q.Where("user_id = ?", user.ID)
}

package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gastos/models"
	"gastos/pkg/dashboard"
	"gastos/pkg/logger"
)

// summary loads the filtered receipts and aggregates them. It writes the
// error response itself and returns false on failure.
func (s *server) summary(c *gin.Context) (dashboard.Summary, bool) {
	user, ok := s.currentUser(c)
	if !ok {
		return dashboard.Summary{}, false
	}
	f, err := parseReceiptFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return dashboard.Summary{}, false
	}
	var items []models.Receipt
	q := f.apply(owned(c, s.db.Model(&models.Receipt{}), user))
	if err := q.Select("date", "total", "tax_amount", "category", "vendor", "needs_review").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return dashboard.Summary{}, false
	}
	views := make([]dashboard.Receipt, 0, len(items))
	for _, r := range items {
		views = append(views, r.DashboardView())
	}
	return dashboard.Summarize(views), true
}

func (s *server) dashboardHandler(c *gin.Context) {
	sum, ok := s.summary(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *server) dashboardChartHandler(c *gin.Context) {
	sum, ok := s.summary(c)
	if !ok {
		return
	}
	title := c.DefaultQuery("title", "Gastos por categoría")
	png, err := dashboard.CategoryChart(sum, title)
	if err != nil {
		if errors.Is(err, dashboard.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no receipts to chart"})
			return
		}
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("render category chart")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chart failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

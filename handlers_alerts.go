package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gastos/models"
	"gastos/pkg/alerts"
	"gastos/pkg/logger"
)

func (s *server) listAlertRulesHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	var rules []models.AlertRule
	if err := owned(c, s.db.Model(&models.AlertRule{}), user).Order("id").Find(&rules).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (s *server) createAlertRuleHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Type      string  `json:"type" binding:"required"`
		Threshold float64 `json:"threshold"`
		Category  string  `json:"category"`
		Timeframe string  `json:"timeframe"`
		IsActive  *bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule := models.AlertRule{
		UserID:    user.ID,
		Type:      strings.ToUpper(strings.TrimSpace(req.Type)),
		Threshold: req.Threshold,
		Category:  strings.TrimSpace(req.Category),
		Timeframe: strings.ToUpper(strings.TrimSpace(req.Timeframe)),
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	if rule.Timeframe == "" {
		rule.Timeframe = string(alerts.Monthly)
	}
	if !rule.Rule().Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert rule: type must be AMOUNT, CATEGORY or FREQUENCY; CATEGORY needs a category; FREQUENCY needs DAILY, WEEKLY or MONTHLY"})
		return
	}
	if rule.Threshold < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must not be negative"})
		return
	}
	// gorm skips zero values that carry a default, so IsActive=false is set explicitly.
	if err := s.db.Create(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	if !rule.IsActive {
		if err := s.db.Model(&rule).Update("is_active", false).Error; err != nil {
			logger.FromContext(c.Request.Context()).Error().Err(err).Uint("rule_id", rule.ID).Msg("deactivate alert rule")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
			return
		}
	}
	c.JSON(http.StatusOK, rule)
}

// findAlertRule loads a rule visible to the caller, writing 404/403 on failure.
func (s *server) findAlertRule(c *gin.Context, user *models.User) (*models.AlertRule, bool) {
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}
	var rule models.AlertRule
	if err := s.db.First(&rule, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	if !isAdmin(c) && rule.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return &rule, true
}

func (s *server) toggleAlertRuleHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	rule, ok := s.findAlertRule(c, user)
	if !ok {
		return
	}
	rule.IsActive = !rule.IsActive
	if err := s.db.Model(rule).Update("is_active", rule.IsActive).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *server) deleteAlertRuleHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	rule, ok := s.findAlertRule(c, user)
	if !ok {
		return
	}
	if err := s.db.Delete(rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert rule deleted"})
}

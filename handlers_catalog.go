package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"gastos/models"
	"gastos/pkg/database"
	"gastos/pkg/extract"
	"gastos/pkg/logger"
	"gastos/pkg/storage"
)

type companyRequest struct {
	Name    string `json:"name" binding:"required"`
	RUT     string `json:"rut"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

// normalize trims the request and canonicalizes the RUT. An empty RUT is allowed.
func (r *companyRequest) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("name required")
	}
	if strings.TrimSpace(r.RUT) == "" {
		r.RUT = ""
		return nil
	}
	rut, ok := extract.NormalizeRUT(r.RUT)
	if !ok {
		return fmt.Errorf("invalid RUT %q", r.RUT)
	}
	r.RUT = rut
	return nil
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func (s *server) listCompaniesHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	q := owned(c, s.db.Model(&models.Company{}), user)
	if c.Query("all") != "1" {
		q = q.Where("active = ?", true)
	}
	var items []models.Company
	if err := q.Order("name").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) createCompanyHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	var req companyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	co := models.Company{UserID: user.ID, Active: true, Name: req.Name, RUT: req.RUT, Address: req.Address, Email: req.Email, Phone: req.Phone}
	if err := s.db.Create(&co).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "company with this RUT already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusOK, co)
}

// findCompany loads a company visible to user, writing 404/403 on failure.
func (s *server) findCompany(c *gin.Context, user *models.User, id uint) (*models.Company, bool) {
	var co models.Company
	if err := s.db.First(&co, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "company not found"})
		return nil, false
	}
	if !isAdmin(c) && co.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return &co, true
}

func (s *server) updateCompanyHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	co, ok := s.findCompany(c, user, id)
	if !ok {
		return
	}
	var req companyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	co.Name, co.RUT, co.Address, co.Email, co.Phone = req.Name, req.RUT, req.Address, req.Email, req.Phone
	co.Active = true
	if err := s.db.Save(co).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "company with this RUT already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, co)
}

// deleteCompanyHandler deactivates the company. Saved receipts keep their link.
func (s *server) deleteCompanyHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	co, ok := s.findCompany(c, user, id)
	if !ok {
		return
	}
	if err := s.db.Model(co).Update("active", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "company deactivated"})
}

func (s *server) listCategoriesHandler(c *gin.Context) {
	var cats []models.Category
	if err := s.db.Order("position, id").Find(&cats).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, cats)
}

// createCategoryHandler adds or replaces a category's keywords and reloads
// the extractor so new uploads see it.
func (s *server) createCategoryHandler(c *gin.Context) {
	if !isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "administrator only"})
		return
	}
	var req struct {
		Name     string   `json:"name" binding:"required"`
		Keywords []string `json:"keywords"`
		Position *int     `json:"position"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	keywords := make([]string, 0, len(req.Keywords))
	for _, k := range req.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}

	var cat models.Category
	err := s.db.Where("name = ?", name).First(&cat).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		cat = models.Category{Name: name}
		if req.Position != nil {
			cat.Position = *req.Position
		} else {
			var maxPos int
			if err := s.db.Model(&models.Category{}).Select("COALESCE(MAX(position), 0)").Scan(&maxPos).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
				return
			}
			cat.Position = maxPos + 10
		}
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	case req.Position != nil:
		cat.Position = *req.Position
	}
	cat.Keywords = keywords
	if err := s.db.Save(&cat).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	if err := s.reloadPipeline(c.Request.Context()); err != nil {
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("reload extractor after category change")
	}
	c.JSON(http.StatusOK, cat)
}

func (s *server) downloadDocumentHandler(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var doc models.Document
	if err := s.db.First(&doc, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if !isAdmin(c) && doc.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	rc, err := s.storage.Open(c.Request.Context(), doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file missing from storage"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open failed"})
		return
	}
	defer rc.Close()
	ct := doc.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, doc.Size, ct, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", doc.FileName),
	})
}

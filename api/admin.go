package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freebike/rental-backend/catalog"
	"github.com/freebike/rental-backend/internal/middleware"
)

// Catalog administration. All handlers here sit behind the manage:catalog
// permission.

type packageRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

func (a *API) getPackagesHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	packages, err := a.repos.Catalog.GetPackages(c)
	if err != nil {
		logger.Error("Failed to get packages", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, packages)
}

func (a *API) createPackageHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req packageRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pkg := catalog.Package{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: nullString(req.Description),
		Active:      req.Active,
	}
	if err := a.repos.Catalog.CreatePackage(c, &pkg); err != nil {
		logger.Error("Failed to create package", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, pkg)
}

func (a *API) updatePackageHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req packageRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pkg := catalog.Package{
		ID:          id,
		Name:        req.Name,
		Description: nullString(req.Description),
		Active:      req.Active,
	}
	if err := a.repos.Catalog.UpdatePackage(c, &pkg); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "Unknown package"})
			return
		}
		logger.Error("Failed to update package", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pkg)
}

func (a *API) deletePackageHandler(c *gin.Context) {
	a.deleteCatalogRow(c, a.repos.Catalog.DeletePackage)
}

type formulaRequest struct {
	PackageID  uuid.UUID `json:"packageId" binding:"required"`
	Name       string    `json:"name" binding:"required"`
	HourlyRate int64     `json:"hourlyRate" binding:"required"`
	DailyCap   *int64    `json:"dailyCap"`
	UnlockFee  int64     `json:"unlockFee"`
}

func (a *API) getFormulasHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var packageID *uuid.UUID
	if p := c.Query("packageId"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid packageId"})
			return
		}
		packageID = &id
	}

	formulas, err := a.repos.Catalog.GetFormulas(c, packageID)
	if err != nil {
		logger.Error("Failed to get formulas", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, formulas)
}

func (a *API) createFormulaHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req formulaRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := a.repos.Catalog.GetPackage(c, req.PackageID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "PACKAGE_NOT_FOUND", "message": "Unknown package"})
			return
		}
		logger.Error("Failed to get package", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f := catalog.Formula{
		ID:         uuid.New(),
		PackageID:  req.PackageID,
		Name:       req.Name,
		HourlyRate: req.HourlyRate,
		DailyCap:   nullInt64(req.DailyCap),
		UnlockFee:  req.UnlockFee,
	}
	if err := a.repos.Catalog.CreateFormula(c, &f); err != nil {
		logger.Error("Failed to create formula", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (a *API) updateFormulaHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req formulaRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := catalog.Formula{
		ID:         id,
		PackageID:  req.PackageID,
		Name:       req.Name,
		HourlyRate: req.HourlyRate,
		DailyCap:   nullInt64(req.DailyCap),
		UnlockFee:  req.UnlockFee,
	}
	if err := a.repos.Catalog.UpdateFormula(c, &f); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "Unknown formula"})
			return
		}
		logger.Error("Failed to update formula", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, f)
}

func (a *API) deleteFormulaHandler(c *gin.Context) {
	a.deleteCatalogRow(c, a.repos.Catalog.DeleteFormula)
}

type promotionRequest struct {
	Code            string    `json:"code" binding:"required"`
	DiscountPercent int64     `json:"discountPercent" binding:"required"`
	StartsAt        time.Time `json:"startsAt" binding:"required"`
	EndsAt          time.Time `json:"endsAt" binding:"required"`
	Active          bool      `json:"active"`
}

func (a *API) getPromotionsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	promotions, err := a.repos.Catalog.GetPromotions(c)
	if err != nil {
		logger.Error("Failed to get promotions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, promotions)
}

func (a *API) createPromotionHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req promotionRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DiscountPercent < 1 || req.DiscountPercent > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "discountPercent must be between 1 and 100"})
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endsAt must be after startsAt"})
		return
	}

	p := catalog.Promotion{
		ID:              uuid.New(),
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Active:          req.Active,
	}
	if err := a.repos.Catalog.CreatePromotion(c, &p); err != nil {
		logger.Error("Failed to create promotion", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (a *API) updatePromotionHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req promotionRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := catalog.Promotion{
		ID:              id,
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Active:          req.Active,
	}
	if err := a.repos.Catalog.UpdatePromotion(c, &p); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "Unknown promotion"})
			return
		}
		logger.Error("Failed to update promotion", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) deletePromotionHandler(c *gin.Context) {
	a.deleteCatalogRow(c, a.repos.Catalog.DeletePromotion)
}

func (a *API) deleteCatalogRow(c *gin.Context, del func(ctx context.Context, id uuid.UUID) error) {
	logger := middleware.GetLogger(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := del(c, id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "Nothing to delete"})
			return
		}
		logger.Error("Failed to delete catalog row", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

package controllers

import (
	"errors"
	"net/http"

	"photo-vault-api/services"

	"github.com/gin-gonic/gin"
)

var (
	registry   *services.ServiceRegistry
	connector  *services.SourceConnectorService
	importJobs *services.ImportJobService
	dedupScans *services.DedupScanService
	rollbacks  *services.RollbackService
	planGuard  *services.PlanGuardService
)

// Init wires the shared service instances. Must be called once before the
// routes are registered; the import and scan services own worker goroutines,
// so handlers must all go through the same instances.
func Init(r *services.ServiceRegistry) {
	registry = r
	connector = services.NewSourceConnectorService(nil, r)
	importJobs = services.NewImportJobService(nil, connector)
	dedupScans = services.NewDedupScanService(nil)
	rollbacks = services.NewRollbackService(nil)
	planGuard = services.NewPlanGuardService(nil)
}

// ImportJobService exposes the shared instance for startup tasks such as
// reclaiming abandoned jobs.
func ImportJobService() *services.ImportJobService {
	return importJobs
}

func currentUserID(c *gin.Context) int {
	userID, _ := c.Get("userID")
	id, _ := userID.(int)
	return id
}

// respondServiceError maps service sentinels onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, services.ErrAuthFailed):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrQuotaExceeded):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrActiveJobExists),
		errors.Is(err, services.ErrStateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

package controllers

import (
	"net/http"

	"photo-vault-api/services"

	"github.com/gin-gonic/gin"
)

// StartImportJob creates and starts an import run. Only one non-terminal
// job per account; a second request gets 409.
func StartImportJob(c *gin.Context) {
	var req services.ImportJobInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := importJobs.Start(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"job": job})
}

// GetImportJob returns the job row with live progress counters.
func GetImportJob(c *gin.Context) {
	job, err := importJobs.Status(currentUserID(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// CancelImportJob requests cancellation. Assets already imported stay.
func CancelImportJob(c *gin.Context) {
	job, err := importJobs.Cancel(currentUserID(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// PauseImportJob requests a pause at the next per-asset checkpoint.
func PauseImportJob(c *gin.Context) {
	job, err := importJobs.Pause(currentUserID(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// ResumeImportJob restarts a paused or quota-blocked job.
func ResumeImportJob(c *gin.Context) {
	job, err := importJobs.Resume(currentUserID(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// RollbackImportJob removes every asset a completed job brought in.
func RollbackImportJob(c *gin.Context) {
	removed, err := rollbacks.Rollback(currentUserID(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "Import rolled back",
		"removed_assets": removed,
	})
}

package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetPlan returns the caller's quota snapshot: plan key, live asset count
// and remaining capacity.
func GetPlan(c *gin.Context) {
	info, err := planGuard.PlanInfo(currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": info})
}

package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ResolveGroupRequest struct {
	Action      string `json:"action" binding:"required"`
	KeepAssetID string `json:"keep_asset_id"`
}

// StartDedupScan kicks off a whole-vault duplicate scan for the caller.
func StartDedupScan(c *gin.Context) {
	scan, err := dedupScans.StartScan(currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"scan": scan})
}

// GetDedupScan returns scan progress and result counters.
func GetDedupScan(c *gin.Context) {
	scan, err := dedupScans.Status(currentUserID(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scan": scan})
}

// ListDuplicateGroups lists the caller's duplicate groups. Filter with
// ?status=pending or ?status=resolved.
func ListDuplicateGroups(c *gin.Context) {
	groups, err := dedupScans.Groups(currentUserID(c), c.Query("status"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// ResolveDuplicateGroup applies keep_one or keep_all to a pending group.
func ResolveDuplicateGroup(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req ResolveGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := dedupScans.ResolveGroup(currentUserID(c), uint(groupID), req.Action, req.KeepAssetID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ConnectSourceRequest struct {
	ServiceKey  string `json:"service_key" binding:"required"`
	ArchivePath string `json:"archive_path"`
}

// ListServices returns the provider catalog with capability flags, so
// clients can grey out what cannot be connected yet.
func ListServices(c *gin.Context) {
	servicesList, err := registry.List()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": servicesList})
}

// ConnectSource authorizes a new import source. OAuth providers return an
// auth_url for the client to complete; archive sources are created directly.
func ConnectSource(c *gin.Context) {
	var req ConnectSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := connector.Connect(currentUserID(c), req.ServiceKey, req.ArchivePath)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListSources returns the caller's connected sources.
func ListSources(c *gin.Context) {
	sources, err := connector.ListSources(currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// DisconnectSource deactivates a source. Imported assets stay in the vault.
func DisconnectSource(c *gin.Context) {
	sourceID, ok := sourceIDParam(c)
	if !ok {
		return
	}
	if err := connector.Disconnect(currentUserID(c), sourceID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Source disconnected"})
}

// ListSourceAlbums enumerates the remote albums of a source.
func ListSourceAlbums(c *gin.Context) {
	sourceID, ok := sourceIDParam(c)
	if !ok {
		return
	}
	albums, err := connector.ListAlbums(c.Request.Context(), currentUserID(c), sourceID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"albums": albums})
}

// CheckNewAssets reports how many remote assets have not been imported yet.
func CheckNewAssets(c *gin.Context) {
	sourceID, ok := sourceIDParam(c)
	if !ok {
		return
	}
	count, err := connector.CheckNew(c.Request.Context(), currentUserID(c), sourceID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"new_assets": count})
}

func sourceIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source ID"})
		return 0, false
	}
	return uint(id), true
}

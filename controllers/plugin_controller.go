package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketsync/scheduler"
)

// PluginController exposes the registered source and storage plugins
type PluginController struct {
	scheduler *scheduler.Scheduler
}

// NewPluginController creates a new plugin controller
func NewPluginController(s *scheduler.Scheduler) *PluginController {
	return &PluginController{scheduler: s}
}

// ListPlugins returns every registered plugin grouped by type
// GET /api/v1/plugins
func (pc *PluginController) ListPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data_sources": pc.scheduler.ListSourcePlugins(),
		"storages":     pc.scheduler.ListStoragePlugins(),
	})
}

// ListPluginsByType returns plugins of one type
// GET /api/v1/plugins/:type
func (pc *PluginController) ListPluginsByType(c *gin.Context) {
	pluginType := c.Param("type")
	switch pluginType {
	case "data_source":
		c.JSON(http.StatusOK, gin.H{"type": pluginType, "plugins": pc.scheduler.ListSourcePlugins()})
	case "storage":
		c.JSON(http.StatusOK, gin.H{"type": pluginType, "plugins": pc.scheduler.ListStoragePlugins()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "plugin type must be data_source or storage",
		})
	}
}

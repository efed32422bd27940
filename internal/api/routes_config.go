package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/events"
)

// handleGetConfig returns the current configuration with the API token
// masked.
func (s *Server) handleGetConfig(c *gin.Context) {
	api := s.cfg.GetAPI()
	if api.Token != "" {
		api.Token = "********"
	}
	c.JSON(http.StatusOK, gin.H{
		"realm":   s.cfg.GetRealm(),
		"session": s.cfg.GetSession(),
		"api":     api,
		"mqtt":    s.cfg.GetMQTT(),
		"capture": s.cfg.GetCapture(),
		"health":  s.cfg.GetHealth(),
		"logging": s.cfg.GetLogging(),
	})
}

type configUpdate struct {
	Section string      `json:"section" binding:"required"`
	Key     string      `json:"key" binding:"required"`
	Value   interface{} `json:"value"`
}

// handleSetConfig changes one field, validates the result and saves it.
// A change that leaves the configuration invalid is rolled back.
func (s *Server) handleSetConfig(c *gin.Context) {
	var body configUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previous, err := s.cfg.Field(body.Section, body.Key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cfg.UpdateField(body.Section, body.Key, body.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if result := config.Validate(s.cfg); !result.IsValid() {
		s.cfg.UpdateField(body.Section, body.Key, previous)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "configuration invalid",
			"errors": result.Errors,
		})
		return
	}

	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventConfigChanged,
		Source: "api",
		Payload: events.ConfigChangedPayload{
			Section: body.Section,
			Key:     body.Key,
			Value:   body.Value,
		},
	})

	log.Info().Str("section", body.Section).Str("key", body.Key).Msg("API: config updated")
	c.JSON(http.StatusOK, gin.H{
		"status":  "updated",
		"section": body.Section,
		"key":     body.Key,
	})
}

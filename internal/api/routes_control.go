package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// guidRequest is the body of operations aimed at one object.
type guidRequest struct {
	GUID string `json:"guid" binding:"required"`
}

// bindGUID parses the request body's GUID, answering 400 on failure.
func bindGUID(c *gin.Context) (protocol.GUID, bool) {
	var body guidRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	guid, err := protocol.ParseGUID(body.GUID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return guid, true
}

// respondError maps facade errors onto HTTP statuses.
func respondError(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	var pre *subsystem.PreconditionError
	var transport *subsystem.TransportError
	switch {
	case errors.As(err, &pre):
		status = http.StatusConflict
	case errors.Is(err, subsystem.ErrNotConnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, subsystem.ErrDisposed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &transport):
		status = http.StatusBadGateway
	}

	log.Warn().Err(err).Str("op", op).Int("status", status).Msg("API: operation failed")
	c.JSON(status, gin.H{"error": err.Error(), "operation": op})
}

func (s *Server) handleSelectTarget(c *gin.Context) {
	guid, ok := bindGUID(c)
	if !ok {
		return
	}
	if err := s.deps.Set.Targeting.Select(c.Request.Context(), guid); err != nil {
		respondError(c, "target", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent", "guid": guid})
}

func (s *Server) handleAttack(c *gin.Context) {
	guid, ok := bindGUID(c)
	if !ok {
		return
	}
	outcome, err := s.deps.Set.Combat.Attack(c.Request.Context(), guid)
	if err != nil {
		respondError(c, "attack", err)
		return
	}

	log.Info().Stringer("guid", guid).Str("outcome", string(outcome)).Msg("API: attack")
	c.JSON(http.StatusOK, gin.H{
		"status":  "attacking",
		"guid":    guid,
		"outcome": outcome,
	})
}

func (s *Server) handleStopAttack(c *gin.Context) {
	if err := s.deps.Set.Combat.StopAttack(c.Request.Context()); err != nil {
		respondError(c, "stop attack", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// auctionSearchRequest mirrors the auction house search form. Missing
// filters match everything.
type auctionSearchRequest struct {
	Name          string  `json:"name"`
	ListFrom      uint32  `json:"list_from"`
	LevelMin      uint8   `json:"level_min"`
	LevelMax      uint8   `json:"level_max"`
	InventoryType *uint32 `json:"inventory_type"`
	Class         *uint32 `json:"class"`
	Subclass      *uint32 `json:"subclass"`
	Quality       *uint32 `json:"quality"`
	Usable        bool    `json:"usable"`
	WaitResults   bool    `json:"wait"`
}

func anyIfNil(v *uint32) uint32 {
	if v == nil {
		return protocol.AnyValue
	}
	return *v
}

func (r auctionSearchRequest) query() protocol.AuctionQuery {
	return protocol.AuctionQuery{
		ListFrom:      r.ListFrom,
		Name:          r.Name,
		LevelMin:      r.LevelMin,
		LevelMax:      r.LevelMax,
		InventoryType: anyIfNil(r.InventoryType),
		Class:         anyIfNil(r.Class),
		Subclass:      anyIfNil(r.Subclass),
		Quality:       anyIfNil(r.Quality),
		Usable:        r.Usable,
	}
}

// handleAuctionSearch sends a listing query. With "wait" set it also
// waits up to the correlation timeout for the result page.
func (s *Server) handleAuctionSearch(c *gin.Context) {
	var body auctionSearchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	auction := s.deps.Set.Auction

	var listings <-chan protocol.AuctionList
	if body.WaitResults {
		ch, cancel := auction.Listings()
		defer cancel()
		listings = ch
	}

	if err := auction.Search(c.Request.Context(), body.query()); err != nil {
		respondError(c, "auction search", err)
		return
	}
	if listings == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
		return
	}

	timer := time.NewTimer(s.cfg.GetSession().CorrelationTimeout())
	defer timer.Stop()
	select {
	case list, ok := <-listings:
		if !ok {
			respondError(c, "auction search", subsystem.ErrDisposed)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "listed", "result": list})
	case <-timer.C:
		c.JSON(http.StatusAccepted, gin.H{"status": "sent", "timed_out": true})
	case <-c.Request.Context().Done():
		respondError(c, "auction search", c.Request.Context().Err())
	}
}

func (s *Server) handleTradeCancel(c *gin.Context) {
	if err := s.deps.Set.Trade.Cancel(c.Request.Context()); err != nil {
		respondError(c, "cancel trade", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) handleGuildRoster(c *gin.Context) {
	if err := s.deps.Set.Guild.RequestRoster(c.Request.Context()); err != nil {
		respondError(c, "guild roster", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}

func (s *Server) handleRealmPing(c *gin.Context) {
	rtt, ok, err := s.deps.Set.Pinger.Ping(c.Request.Context())
	if err != nil {
		respondError(c, "ping", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"answered": ok,
		"rtt_ms":   rtt.Milliseconds(),
	})
}

func (s *Server) handleResolveName(c *gin.Context) {
	guid, err := protocol.ParseGUID(c.Param("guid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, ok, err := s.deps.Set.Names.Resolve(c.Request.Context(), guid)
	if err != nil {
		respondError(c, "resolve name", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "name not resolved", "guid": guid})
		return
	}
	c.JSON(http.StatusOK, gin.H{"guid": guid, "name": name})
}

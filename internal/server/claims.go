package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
)

// GetDay is the lock-free public read path: availability plus the claim's
// public view, fingerprint included so certificates and QR codes can be
// regenerated.
func (s *Server) GetDay(c *gin.Context) {
	day := strings.TrimSpace(c.Param("day"))

	claim, err := s.claimSvc.GetByDay(c.Request.Context(), day)
	if err != nil {
		if errors.Is(err, claimdomain.ErrNotFound) {
			canonical, parseErr := claimdomain.ParseDay(day)
			if parseErr != nil {
				AbortWithError(c, parseErr)
				return
			}
			c.JSON(http.StatusOK, gin.H{"data": gin.H{
				"day":       canonical,
				"available": true,
			}})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"day":       claim.Day,
		"available": false,
		"claim":     claim,
	}})
}

func (s *Server) VerifyClaim(c *gin.Context) {
	day := strings.TrimSpace(c.Param("day"))
	fingerprint := strings.TrimSpace(c.Query("fingerprint"))

	valid, err := s.claimSvc.VerifyFingerprint(c.Request.Context(), day, fingerprint)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"day":   day,
		"valid": valid,
	}})
}

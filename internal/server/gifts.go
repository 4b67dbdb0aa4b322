package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	giftdomain "github.com/ownaday/daybook/internal/gift/domain"
)

type mintGiftCodeRequest struct {
	MaxUses *int `json:"max_uses"`
}

func (s *Server) MintGiftCode(c *gin.Context) {
	var req mintGiftCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.MaxUses != nil && *req.MaxUses <= 0 {
		AbortWithError(c, newValidationError("max_uses", "invalid_max_uses", "invalid max uses"))
		return
	}

	minted, err := s.giftSvc.Mint(c.Request.Context(), giftdomain.MintRequest{
		MaxUses: req.MaxUses,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": minted})
}

type redeemGiftCodeRequest struct {
	Code    string `json:"code"`
	Day     string `json:"day"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Style   string `json:"style"`
	Color   string `json:"color"`
}

func (s *Server) RedeemGiftCode(c *gin.Context) {
	var req redeemGiftCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	claim, err := s.giftSvc.Redeem(c.Request.Context(), giftdomain.RedeemRequest{
		Code:           strings.TrimSpace(req.Code),
		Day:            strings.TrimSpace(req.Day),
		RecipientEmail: strings.TrimSpace(req.Email),
		RecipientName:  strings.TrimSpace(req.Name),
		Content: claimdomain.Content{
			Title:   req.Title,
			Message: req.Message,
			Style:   req.Style,
			Color:   req.Color,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordClaimCreated(c.Request.Context(), "gift")
	}
	c.JSON(http.StatusCreated, gin.H{"data": claim})
}

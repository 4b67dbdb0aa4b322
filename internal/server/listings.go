package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	listingdomain "github.com/ownaday/daybook/internal/listing/domain"
)

type openListingRequest struct {
	Day      string `json:"day"`
	Email    string `json:"email"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

func (s *Server) OpenListing(c *gin.Context) {
	var req openListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	opened, err := s.listingSvc.Open(c.Request.Context(), listingdomain.OpenListingRequest{
		Day:         strings.TrimSpace(req.Day),
		SellerEmail: strings.TrimSpace(req.Email),
		Price:       req.Price,
		Currency:    strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": opened})
}

type cancelListingRequest struct {
	Email string `json:"email"`
}

func (s *Server) CancelListing(c *gin.Context) {
	var req cancelListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	listingID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_listing_id", "invalid listing id"))
		return
	}

	canceled, err := s.listingSvc.Cancel(c.Request.Context(), listingdomain.CancelListingRequest{
		ListingID:   listingID,
		SellerEmail: strings.TrimSpace(req.Email),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": canceled})
}

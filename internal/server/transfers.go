package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	transferdomain "github.com/ownaday/daybook/internal/transfer/domain"
)

type issueTransferCodeRequest struct {
	Day   string `json:"day"`
	Email string `json:"email"`
}

func (s *Server) IssueTransferCode(c *gin.Context) {
	var req issueTransferCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issued, err := s.transferSvc.Issue(c.Request.Context(), transferdomain.IssueRequest{
		Day:        strings.TrimSpace(req.Day),
		OwnerEmail: strings.TrimSpace(req.Email),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": issued})
}

type revokeTransferCodeRequest struct {
	Day   string `json:"day"`
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (s *Server) RevokeTransferCode(c *gin.Context) {
	var req revokeTransferCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.transferSvc.Revoke(c.Request.Context(), transferdomain.RevokeRequest{
		Day:        strings.TrimSpace(req.Day),
		OwnerEmail: strings.TrimSpace(req.Email),
		Code:       strings.TrimSpace(req.Code),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type transferClaimRequest struct {
	ClaimID     string `json:"claim_id"`
	Fingerprint string `json:"fingerprint"`
	Code        string `json:"code"`
	Email       string `json:"email"`
	Name        string `json:"name"`
}

func (s *Server) TransferClaim(c *gin.Context) {
	var req transferClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	claimID, err := snowflake.ParseString(strings.TrimSpace(req.ClaimID))
	if err != nil {
		AbortWithError(c, newValidationError("claim_id", "invalid_claim_id", "invalid claim id"))
		return
	}

	claim, err := s.transferSvc.Transfer(c.Request.Context(), transferdomain.TransferRequest{
		Day:            strings.TrimSpace(c.Param("day")),
		ClaimID:        claimID,
		Fingerprint:    strings.TrimSpace(req.Fingerprint),
		Code:           strings.TrimSpace(req.Code),
		RecipientEmail: strings.TrimSpace(req.Email),
		RecipientName:  strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordClaimTransferred(c.Request.Context(), "code")
	}
	c.JSON(http.StatusOK, gin.H{"data": claim})
}

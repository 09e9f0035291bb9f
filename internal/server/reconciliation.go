package server

import (
	"net/http"

	recondomain "github.com/ajoure/reconcile/internal/reconciliation/domain"
	"github.com/gin-gonic/gin"
)

// RunReconciliation is the single logical engine invocation: mode selects
// the side-effect-free preview or the committing execute pass.
func (s *Server) RunReconciliation(c *gin.Context) {
	var req recondomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.reconciliationSvc.Run(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// A blocked execute is a first-class outcome, not an HTTP error; the
	// response carries the stats explaining the block.
	c.JSON(http.StatusOK, resp)
}

func (s *Server) RunDiscrepancyAudit(c *gin.Context) {
	var req recondomain.AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.reconciliationSvc.Audit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

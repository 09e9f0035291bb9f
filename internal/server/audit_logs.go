package server

import (
	"net/http"
	"strconv"
	"strings"

	auditdomain "github.com/ajoure/reconcile/internal/audit/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	req := auditdomain.ListRequest{
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		TargetID:   strings.TrimSpace(c.Query("target_id")),
	}

	if v := strings.TrimSpace(c.Query("start_at")); v != "" {
		ts, err := parseQueryDate(v)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.StartAt = &ts
	}
	if v := strings.TrimSpace(c.Query("end_at")); v != "" {
		ts, err := parseQueryDate(v)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.EndAt = &ts
	}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.Limit = n
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

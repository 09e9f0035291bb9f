package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/ajoure/reconcile/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

const defaultViewLimit = 500

func (s *Server) GetUnifiedPayments(c *gin.Context) {
	scope, err := parseScopeQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.paymentSvc.UnifiedView(c.Request.Context(), s.provider, scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": items,
		"total":    len(items),
	})
}

func parseScopeQuery(c *gin.Context) (paymentdomain.Scope, error) {
	scope := paymentdomain.Scope{Limit: defaultViewLimit}

	if v := strings.TrimSpace(c.Query("from")); v != "" {
		ts, err := parseQueryDate(v)
		if err != nil {
			return scope, ErrInvalidRequest
		}
		scope.From = &ts
	}
	if v := strings.TrimSpace(c.Query("to")); v != "" {
		ts, err := parseQueryDate(v)
		if err != nil {
			return scope, ErrInvalidRequest
		}
		scope.To = &ts
	}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return scope, ErrInvalidRequest
		}
		scope.Limit = n
	}

	return scope, nil
}

func parseQueryDate(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

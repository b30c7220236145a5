package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainwf "github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

func TestCollector_ObserveTransition(t *testing.T) {
	c := NewCollector()

	c.ObserveTransition(domainwf.EntityLabTest, "advance", nil, 10*time.Millisecond)
	c.ObserveTransition(domainwf.EntityLabTest, "advance", fmt.Errorf("wrap: %w", domainwf.ErrInvalidTarget), time.Millisecond)
	c.ObserveTransition("", "create", domainwf.ErrInvalidEntityType, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitionsTotal.WithLabelValues("LAB_TEST", "advance", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitionsTotal.WithLabelValues("LAB_TEST", "advance", "INVALID_TARGET")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitionsTotal.WithLabelValues("unknown", "create", "INVALID_ENTITY_TYPE")))
}

func TestCollector_CollaboratorsAndBreakers(t *testing.T) {
	c := NewCollector()

	c.ObserveCollaborator("billing", nil, time.Millisecond)
	c.ObserveCollaborator("billing", errors.New("503"), time.Millisecond)
	c.ObserveCollaborator("billing", gobreaker.ErrOpenState, 0)
	c.BreakerStateChanged("billing", gobreaker.StateClosed, gobreaker.StateOpen)
	c.ObserveReconcile(3, nil)
	c.ObserveReconcile(0, errors.New("locked"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.collaboratorCalls.WithLabelValues("billing", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.collaboratorCalls.WithLabelValues("billing", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.collaboratorCalls.WithLabelValues("billing", "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.breakerState.WithLabelValues("billing")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.reconciledTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconcileErrors))
}

func TestCollector_GinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewCollector()

	r := gin.New()
	r.Use(c.GinMiddleware())
	r.GET("/api/orders/:id", func(ctx *gin.Context) { ctx.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(c.Handler()))

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/"+id, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/orders/:id", "404")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "hospital_workflow_http_requests_total"))
}

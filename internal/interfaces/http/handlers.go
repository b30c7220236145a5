package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/application/service"
	appwf "github.com/harshangpate/hospital-crm/internal/application/workflow"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	domainwf "github.com/harshangpate/hospital-crm/internal/domain/workflow"
	"github.com/harshangpate/hospital-crm/internal/report"
	"github.com/harshangpate/hospital-crm/pkg/utils"
)

// Text field limits
const (
	maxDescriptionRunes = 500
	maxReasonRunes      = 500
	maxExportRows       = 10000
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	orders   service.OrderService
	invoices service.InvoiceService
	beds     service.BedService
	version  string
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, version string, logger Logger) *Handlers {
	return &Handlers{
		orders:   services.Orders,
		invoices: services.Invoices,
		beds:     services.Beds,
		version:  version,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// WorkflowResponse describes one transition table
type WorkflowResponse struct {
	EntityType  domainwf.EntityType   `json:"entity_type"`
	Initial     domainwf.State        `json:"initial"`
	States      []StateResponse       `json:"states"`
	Transitions []domainwf.Transition `json:"transitions"`
}

// StateResponse describes one state of a table
type StateResponse struct {
	Name          domainwf.State   `json:"name"`
	Terminal      bool             `json:"terminal"`
	Next          domainwf.State   `json:"next,omitempty"`
	BranchTargets []domainwf.State `json:"branch_targets,omitempty"`
}

// CreateOrderRequest is the body of POST /api/orders
type CreateOrderRequest struct {
	EntityType  string `json:"entity_type" binding:"required"`
	PatientID   string `json:"patient_id" binding:"required"`
	Description string `json:"description"`
	BedRef      string `json:"bed_ref"`
}

// TransitionBody is the optional body of the transition endpoints.
// UpdatedAt enables the compare-and-swap precondition.
type TransitionBody struct {
	UpdatedAt *time.Time `json:"updated_at"`
	Target    string     `json:"target"`
	Reason    string     `json:"reason"`
}

// ListOrdersQuery holds the query parameters of GET /api/orders
type ListOrdersQuery struct {
	Type      string `form:"type"`
	Status    string `form:"status"`
	PatientID string `form:"patient_id"`
	Critical  string `form:"critical"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// ListInvoicesQuery holds the query parameters of GET /api/invoices
type ListInvoicesQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	respondOK(c, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	})
}

// ListWorkflows handles GET /api/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	tables := domainwf.Tables()
	out := make([]WorkflowResponse, 0, len(tables))
	for _, t := range tables {
		out = append(out, toWorkflowResponse(t))
	}
	respondOK(c, http.StatusOK, out)
}

// GetWorkflow handles GET /api/workflows/:type
func (h *Handlers) GetWorkflow(c *gin.Context) {
	entityType, err := domainwf.ParseEntityType(c.Param("type"))
	if err != nil {
		h.respondError(c, "get_workflow", err)
		return
	}
	t, err := domainwf.TableFor(entityType)
	if err != nil {
		h.respondError(c, "get_workflow", err)
		return
	}
	respondOK(c, http.StatusOK, toWorkflowResponse(t))
}

// CreateOrder handles POST /api/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	entityType, err := domainwf.ParseEntityType(req.EntityType)
	if err != nil {
		h.respondError(c, "create_order", err)
		return
	}
	patientID := strings.TrimSpace(req.PatientID)
	if err := utils.ValidateIdentifier("patient_id", patientID); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	bedRef := strings.TrimSpace(req.BedRef)
	if bedRef != "" {
		if err := utils.ValidateIdentifier("bed_ref", bedRef); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}

	outcome, err := h.orders.Create(c.Request.Context(), sessionFrom(c), appwf.CreateRequest{
		EntityType:  entityType,
		PatientID:   patientID,
		Description: utils.SanitizeString(req.Description, maxDescriptionRunes),
		BedRef:      bedRef,
	})
	if err != nil {
		h.respondError(c, "create_order", err)
		return
	}
	respondOK(c, http.StatusCreated, outcome)
}

// ListOrders handles GET /api/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	filter, ok := h.bindOrderFilter(c)
	if !ok {
		return
	}

	page, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "list_orders", err)
		return
	}
	respondOK(c, http.StatusOK, page)
}

// ExportOrders handles GET /api/orders/export.xlsx. It ignores limit and
// offset and exports every matching order up to a fixed row cap.
func (h *Handlers) ExportOrders(c *gin.Context) {
	filter, ok := h.bindOrderFilter(c)
	if !ok {
		return
	}

	var orders []*entity.WorkflowEntity
	filter.Limit = service.MaxPageSize
	filter.Offset = 0
	for len(orders) < maxExportRows {
		page, err := h.orders.List(c.Request.Context(), filter)
		if err != nil {
			h.respondError(c, "export_orders", err)
			return
		}
		orders = append(orders, page.Items...)
		if len(page.Items) < page.Limit || filter.Offset+len(page.Items) >= page.Total {
			break
		}
		filter.Offset += len(page.Items)
	}
	if len(orders) > maxExportRows {
		orders = orders[:maxExportRows]
	}

	var buf bytes.Buffer
	if err := report.WriteOrders(&buf, orders); err != nil {
		h.respondError(c, "export_orders", err)
		return
	}

	filename := fmt.Sprintf("orders-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handlers) bindOrderFilter(c *gin.Context) (port.OrderFilter, bool) {
	var q ListOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBadRequest(c, "invalid query parameters")
		return port.OrderFilter{}, false
	}

	filter := port.OrderFilter{
		Status:    domainwf.State(strings.ToUpper(strings.TrimSpace(q.Status))),
		PatientID: strings.TrimSpace(q.PatientID),
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.Type != "" {
		t, err := domainwf.ParseEntityType(q.Type)
		if err != nil {
			h.respondError(c, "list_orders", err)
			return port.OrderFilter{}, false
		}
		filter.EntityType = t
	}
	switch strings.ToLower(q.Critical) {
	case "":
	case "true", "1":
		v := true
		filter.Critical = &v
	case "false", "0":
		v := false
		filter.Critical = &v
	default:
		respondBadRequest(c, "critical must be true or false")
		return port.OrderFilter{}, false
	}
	return filter, true
}

// GetOrder handles GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_order", err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// GetOrderHistory handles GET /api/orders/:id/history
func (h *Handlers) GetOrderHistory(c *gin.Context) {
	records, err := h.orders.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_history", err)
		return
	}
	respondOK(c, http.StatusOK, records)
}

// GetOrderInvoice handles GET /api/orders/:id/invoice
func (h *Handlers) GetOrderInvoice(c *gin.Context) {
	invoice, err := h.invoices.GetByEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_order_invoice", err)
		return
	}
	respondOK(c, http.StatusOK, invoice)
}

// ConfirmOrder handles POST /api/orders/:id/confirm
func (h *Handlers) ConfirmOrder(c *gin.Context) {
	h.transition(c, "confirm", h.orders.Confirm)
}

// AdvanceOrder handles POST /api/orders/:id/advance
func (h *Handlers) AdvanceOrder(c *gin.Context) {
	h.transition(c, "advance", h.orders.Advance)
}

// MarkCritical handles POST /api/orders/:id/critical
func (h *Handlers) MarkCritical(c *gin.Context) {
	h.transition(c, "mark_critical", h.orders.MarkCritical)
}

// CancelOrder handles POST /api/orders/:id/cancel
func (h *Handlers) CancelOrder(c *gin.Context) {
	h.transition(c, "cancel", h.orders.Cancel)
}

type transitionFunc func(ctx context.Context, session service.Session, req service.TransitionRequest) (*service.Outcome, error)

func (h *Handlers) transition(c *gin.Context, op string, fn transitionFunc) {
	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	req := service.TransitionRequest{
		ID:                c.Param("id"),
		ExpectedUpdatedAt: body.UpdatedAt,
		Target:            domainwf.State(strings.ToUpper(strings.TrimSpace(body.Target))),
		Reason:            utils.SanitizeString(body.Reason, maxReasonRunes),
	}

	outcome, err := fn(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.respondError(c, op, err)
		return
	}
	respondOK(c, http.StatusOK, outcome)
}

// ListInvoices handles GET /api/invoices
func (h *Handlers) ListInvoices(c *gin.Context) {
	var q ListInvoicesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBadRequest(c, "invalid query parameters")
		return
	}

	invoices, err := h.invoices.List(c.Request.Context(), strings.ToUpper(q.Status), q.Limit, q.Offset)
	if err != nil {
		h.respondError(c, "list_invoices", err)
		return
	}
	if invoices == nil {
		invoices = []*entity.Invoice{}
	}
	respondOK(c, http.StatusOK, invoices)
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	invoice, err := h.invoices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_invoice", err)
		return
	}
	respondOK(c, http.StatusOK, invoice)
}

// PayInvoice handles POST /api/invoices/:id/pay
func (h *Handlers) PayInvoice(c *gin.Context) {
	invoice, err := h.invoices.MarkPaid(c.Request.Context(), sessionFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "pay_invoice", err)
		return
	}
	respondOK(c, http.StatusOK, invoice)
}

// ListBeds handles GET /api/beds
func (h *Handlers) ListBeds(c *gin.Context) {
	beds, err := h.beds.List(c.Request.Context(), c.Query("ward"))
	if err != nil {
		h.respondError(c, "list_beds", err)
		return
	}
	respondOK(c, http.StatusOK, beds)
}

func toWorkflowResponse(t domainwf.Table) WorkflowResponse {
	states := make([]StateResponse, 0, len(t.States()))
	for _, s := range t.States() {
		sr := StateResponse{Name: s, Terminal: t.IsTerminal(s)}
		if next, _, ok := t.Next(s); ok {
			sr.Next = next
		}
		sr.BranchTargets = t.BranchTargets(s)
		states = append(states, sr)
	}
	return WorkflowResponse{
		EntityType:  t.EntityType(),
		Initial:     t.Initial(),
		States:      states,
		Transitions: t.Transitions(),
	}
}

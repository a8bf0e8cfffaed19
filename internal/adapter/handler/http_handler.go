package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mfalan/stock-ledger/internal/core/domain"
	"github.com/mfalan/stock-ledger/internal/core/service"
)

// HTTPHandler is the JSON transport over the core services. Authentication
// and authorization happen upstream; requests arriving here are trusted.
type HTTPHandler struct {
	movements *service.MovementService
	kits      *service.KitService
	queries   *service.QueryService
	catalog   *service.CatalogService
}

func NewHTTPHandler(movements *service.MovementService, kits *service.KitService, queries *service.QueryService, catalog *service.CatalogService) *HTTPHandler {
	return &HTTPHandler{
		movements: movements,
		kits:      kits,
		queries:   queries,
		catalog:   catalog,
	}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/items", h.CreateItem)
	mux.HandleFunc("GET /api/items", h.ListItems)
	mux.HandleFunc("GET /api/items/{id}", h.GetItem)
	mux.HandleFunc("DELETE /api/items/{id}", h.DeleteItem)

	mux.HandleFunc("POST /api/item-groups", h.CreateGroup)
	mux.HandleFunc("GET /api/item-groups", h.ListGroups)

	mux.HandleFunc("POST /api/composite-items", h.CreateComposite)
	mux.HandleFunc("GET /api/composite-items", h.ListComposites)
	mux.HandleFunc("GET /api/composite-items/{id}", h.GetComposite)
	mux.HandleFunc("GET /api/composite-items/{id}/buildable", h.BuildableKits)
	mux.HandleFunc("POST /api/composite-items/stock-out", h.StockOutComposite)

	mux.HandleFunc("POST /api/movements/in", h.StockIn)
	mux.HandleFunc("POST /api/movements/out", h.StockOut)
	mux.HandleFunc("POST /api/movements/adjust", h.AdjustStock)
	mux.HandleFunc("GET /api/inventory-movements", h.ListMovements)

	mux.HandleFunc("GET /api/inventory/low-stock", h.LowStock)
	mux.HandleFunc("GET /api/inventory/summary", h.Summary)
	mux.HandleFunc("GET /api/inventory/stats", h.Stats)
}

type movementRequest struct {
	ItemID      int64  `json:"item_id"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason"`
	ReferenceNo string `json:"reference_no"`
	Note        string `json:"note"`
}

type createItemRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Size        string `json:"size"`
	Description string `json:"description"`
	GroupID     *int64 `json:"group_id"`
	Threshold   *int   `json:"threshold"`
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createCompositeRequest struct {
	SKU         string                      `json:"sku"`
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	Components  []domain.CompositeComponent `json:"components"`
}

type stockOutCompositeRequest struct {
	CompositeItemID int64  `json:"composite_item_id"`
	Quantity        int    `json:"quantity"`
	RequestID       string `json:"request_id"`
	ReferenceNo     string `json:"reference_no"`
	Note            string `json:"note"`
}

type itemResponse struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Size        string `json:"size,omitempty"`
	Description string `json:"description,omitempty"`
	GroupID     *int64 `json:"group_id,omitempty"`
	Quantity    int    `json:"quantity"`
	Threshold   *int   `json:"threshold,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type compositeResponse struct {
	ID          int64                       `json:"id"`
	SKU         string                      `json:"sku"`
	Name        string                      `json:"name"`
	Description string                      `json:"description,omitempty"`
	Components  []domain.CompositeComponent `json:"components,omitempty"`
}

type buildableResponse struct {
	CompositeItemID int64 `json:"composite_item_id"`
	Buildable       *int  `json:"buildable"` // null when unknown
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	item, err := h.catalog.CreateItem(r.Context(), service.CreateItemRequest{
		Code:        req.Code,
		Name:        req.Name,
		Size:        req.Size,
		Description: req.Description,
		GroupID:     req.GroupID,
		Threshold:   req.Threshold,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]itemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toItemResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := h.catalog.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.catalog.DeleteItem(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	group, err := h.catalog.CreateGroup(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *HTTPHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.catalog.ListGroups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *HTTPHandler) CreateComposite(w http.ResponseWriter, r *http.Request) {
	var req createCompositeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	composite, err := h.catalog.CreateComposite(r.Context(), service.CreateCompositeRequest{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Components:  req.Components,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, compositeResponse{
		ID:          composite.ID,
		SKU:         composite.SKU,
		Name:        composite.Name,
		Description: composite.Description,
		Components:  req.Components,
	})
}

func (h *HTTPHandler) ListComposites(w http.ResponseWriter, r *http.Request) {
	composites, err := h.catalog.ListComposites(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]compositeResponse, 0, len(composites))
	for _, c := range composites {
		resp = append(resp, compositeResponse{ID: c.ID, SKU: c.SKU, Name: c.Name, Description: c.Description})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetComposite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	composite, components, err := h.catalog.GetComposite(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, compositeResponse{
		ID:          composite.ID,
		SKU:         composite.SKU,
		Name:        composite.Name,
		Description: composite.Description,
		Components:  components,
	})
}

func (h *HTTPHandler) BuildableKits(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	capacity, err := h.kits.ComputeBuildableKits(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := buildableResponse{CompositeItemID: id}
	if capacity.Known {
		resp.Buildable = &capacity.Buildable
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) StockOutComposite(w http.ResponseWriter, r *http.Request) {
	var req stockOutCompositeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	result, err := h.kits.StockOutComposite(r.Context(), service.CompositeStockOutRequest{
		CompositeID: req.CompositeItemID,
		KitQuantity: req.Quantity,
		RequestID:   req.RequestID,
		ReferenceNo: req.ReferenceNo,
		Note:        req.Note,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) StockIn(w http.ResponseWriter, r *http.Request) {
	h.applyMovement(w, r, h.movements.StockIn)
}

func (h *HTTPHandler) StockOut(w http.ResponseWriter, r *http.Request) {
	h.applyMovement(w, r, h.movements.StockOut)
}

func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	h.applyMovement(w, r, h.movements.AdjustStock)
}

func (h *HTTPHandler) applyMovement(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, itemID int64, quantity int, opts service.MovementOptions) (*domain.Movement, error)) {
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	movement, err := apply(r.Context(), req.ItemID, req.Quantity, service.MovementOptions{
		Reason:      req.Reason,
		ReferenceNo: req.ReferenceNo,
		Note:        req.Note,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (h *HTTPHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	var override *int
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "threshold must be an integer"})
			return
		}
		override = &value
	}
	items, err := h.queries.ListLowStock(r.Context(), override)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]itemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toItemResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.queries.Summarize(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	var itemID int64
	if raw := r.URL.Query().Get("item_id"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "item_id must be an integer"})
			return
		}
		itemID = value
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
			return
		}
		limit = value
	}
	movements, err := h.queries.RecentMovements(r.Context(), itemID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

func toItemResponse(item *domain.InventoryItem) itemResponse {
	return itemResponse{
		ID:          item.ID,
		Code:        item.Code,
		Name:        item.Name,
		Size:        item.Size,
		Description: item.Description,
		GroupID:     item.GroupID,
		Quantity:    item.Quantity,
		Threshold:   item.Threshold,
		CreatedAt:   item.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr   *domain.ValidationError
		notFoundErr     *domain.NotFoundError
		insufficientErr *domain.InsufficientStockError
		emptyKitErr     *domain.EmptyKitError
		consistencyErr  *domain.ConsistencyError
	)
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Error()})
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: notFoundErr.Error()})
	case errors.As(err, &insufficientErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: insufficientErr.Error()})
	case errors.As(err, &emptyKitErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: emptyKitErr.Error()})
	case errors.Is(err, domain.ErrDuplicateRequest), errors.Is(err, domain.ErrItemInUse):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "conflicting concurrent update, retry"})
	case errors.As(err, &consistencyErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: consistencyErr.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

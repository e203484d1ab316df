package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bazar/backend/internal/domain"
)

// Suppliers

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	page, err := a.service.ListSuppliers(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writePage(w, filter, page)
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	supplier, err := a.service.CreateSupplier(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "supplier created", supplier)
}

func (a *API) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	supplier, err := a.service.GetSupplier(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", supplier)
}

func (a *API) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	supplier, err := a.service.UpdateSupplier(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "supplier updated", supplier)
}

func (a *API) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSupplier(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "supplier deactivated", nil)
}

func (a *API) handleUpsertCatalogItem(w http.ResponseWriter, r *http.Request) {
	var req domain.CatalogItemRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	// PUT addresses the item by path; the path wins over the body.
	if productID := chi.URLParam(r, "productId"); productID != "" {
		req.ProductID = productID
	}
	supplier, err := a.service.UpsertCatalogItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "catalog updated", supplier)
}

func (a *API) handleRemoveCatalogItem(w http.ResponseWriter, r *http.Request) {
	supplier, err := a.service.RemoveCatalogItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "catalog item removed", supplier)
}

// Clients

func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	page, err := a.service.ListClients(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writePage(w, filter, page)
}

func (a *API) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req domain.ClientCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	client, err := a.service.CreateClient(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "client created", client)
}

func (a *API) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := a.service.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", client)
}

func (a *API) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var req domain.ClientUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	client, err := a.service.UpdateClient(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "client updated", client)
}

func (a *API) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteClient(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "client deactivated", nil)
}

func (a *API) handleClientInvoices(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	page, err := a.service.ClientInvoices(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writePage(w, filter, page)
}

// Products

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	page, err := a.service.ListProducts(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writePage(w, filter, page)
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	page, err := a.service.LowStockProducts(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writePage(w, filter, page)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "product created", product)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "product updated", product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "product discontinued", nil)
}

func (a *API) handleAdjustInventory(w http.ResponseWriter, r *http.Request) {
	var req domain.InventoryAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.service.AdjustInventory(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	message := "inventory updated"
	if resp.NeedsReorder {
		message = "inventory updated, stock at or below reorder point"
	}
	writeData(w, http.StatusOK, message, resp)
}

func (a *API) handleListMovements(w http.ResponseWriter, r *http.Request) {
	limit := parsePositive(r.URL.Query().Get("limit"), 0, 0)
	movements, err := a.service.ListMovements(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if movements == nil {
		movements = []domain.StockMovement{}
	}
	writeData(w, http.StatusOK, "", movements)
}

// Invoices

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	page, err := a.service.ListInvoices(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writePage(w, filter, page)
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.InvoiceCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	invoice, err := a.service.CreateInvoice(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "invoice created", invoice)
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", invoice)
}

func (a *API) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.InvoiceUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	invoice, err := a.service.UpdateInvoice(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "invoice updated", invoice)
}

func (a *API) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteInvoice(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "invoice deleted", nil)
}

func (a *API) handleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.InvoiceStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	invoice, err := a.service.ChangeInvoiceStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "invoice status updated", invoice)
}

func (a *API) handleInvoicePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	invoice, err := a.service.UpdatePayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "payment updated", invoice)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", summary)
}

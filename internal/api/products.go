package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"smartrag.com/shop-assistant/internal/store"
)

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid product id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func parseFilter(r *http.Request) (store.ProductFilter, error) {
	q := r.URL.Query()
	filter := store.ProductFilter{
		Name: strings.TrimSpace(q.Get("name")),
		Code: strings.TrimSpace(q.Get("code")),
	}
	if v := q.Get("min_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return filter, errors.New("invalid min_price")
		}
		filter.MinPrice = &d
	}
	if v := q.Get("max_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return filter, errors.New("invalid max_price")
		}
		filter.MaxPrice = &d
	}
	return filter, nil
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (*store.Product, bool) {
	var p store.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Code = strings.TrimSpace(p.Code)
	switch {
	case p.Name == "":
		http.Error(w, "Product name is required", http.StatusBadRequest)
		return nil, false
	case !p.Price.IsPositive():
		http.Error(w, "Product price must be positive", http.StatusBadRequest)
		return nil, false
	case p.MarginalPrice.IsNegative() || p.MarginalPrice.GreaterThan(p.Price):
		http.Error(w, "Marginal price must be between 0 and the price", http.StatusBadRequest)
		return nil, false
	}
	return &p, true
}

func (h *APIHandler) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	products, err := h.catalog.ListProducts(filter)
	if err != nil {
		log.Printf("Error listing products: %v", err)
		http.Error(w, "Failed to list products", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []store.Product{}
	}
	json.NewEncoder(w).Encode(products)
}

func (h *APIHandler) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	if err := h.catalog.CreateProduct(p); err != nil {
		log.Printf("Error creating product %q: %v", p.Name, err)
		http.Error(w, "Failed to create product", http.StatusInternalServerError)
		return
	}
	log.Printf("Product %d (%s) created by %s", p.ID, p.Name, usernameFromContext(r.Context()))

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

func (h *APIHandler) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	p, err := h.catalog.GetProduct(id)
	if err != nil {
		log.Printf("Error getting product %d: %v", id, err)
		http.Error(w, "Failed to get product", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(p)
}

func (h *APIHandler) UpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	p, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	p.ID = id
	if err := h.catalog.UpdateProduct(p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Product not found", http.StatusNotFound)
			return
		}
		log.Printf("Error updating product %d: %v", id, err)
		http.Error(w, "Failed to update product", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(p)
}

func (h *APIHandler) DeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productIDParam(w, r)
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Product not found", http.StatusNotFound)
			return
		}
		log.Printf("Error deleting product %d: %v", id, err)
		http.Error(w, "Failed to delete product", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ReloadIndexHandler(w http.ResponseWriter, r *http.Request) {
	h.indexes.Reload()
	log.Printf("Index reload requested by %s", usernameFromContext(r.Context()))
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "reload scheduled"})
}

func (h *APIHandler) IndexStatusHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.indexes.Status())
}

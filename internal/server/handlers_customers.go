package server

import (
	"net/http"
	"strings"

	"github.com/movebox/customerdupes/internal/models"
)

func (s *Server) handleCustomerList(w http.ResponseWriter, r *http.Request) {
	customers, err := s.db.ListCustomers(r.Context())
	if err != nil {
		storeError(w, "Failed to list customers", err)
		return
	}
	jsonResponse(w, map[string]any{"customers": customers, "count": len(customers)})
}

func (s *Server) handleCustomerGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.db.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, "Failed to load customer", err)
		return
	}
	jsonResponse(w, c)
}

func (s *Server) handleCustomerCreate(w http.ResponseWriter, r *http.Request) {
	var c models.Customer
	if err := decodeJSON(r, &c); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(c.Name) == "" {
		jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	if err := s.db.CreateCustomer(r.Context(), &c); err != nil {
		storeError(w, "Failed to create customer", err)
		return
	}
	jsonStatus(w, http.StatusCreated, c)
}

func (s *Server) handleCustomerUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch models.CustomerPatch
	if err := decodeJSON(r, &patch); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		jsonError(w, "name must not be empty", http.StatusBadRequest)
		return
	}
	if err := s.db.UpdateCustomer(r.Context(), id, patch); err != nil {
		storeError(w, "Failed to update customer", err)
		return
	}
	c, err := s.db.GetCustomer(r.Context(), id)
	if err != nil {
		storeError(w, "Failed to load customer", err)
		return
	}
	jsonResponse(w, c)
}

func (s *Server) handleCustomerDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteCustomer(r.Context(), r.PathValue("id")); err != nil {
		storeError(w, "Failed to delete customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

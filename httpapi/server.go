// Package httpapi exposes the customer service over HTTP. It is a thin
// translation layer: JSON in, JSON out, domain errors mapped to status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/terraskye/customers/customer"
	"github.com/terraskye/customers/eventsourcing"
)

type Server struct {
	service *customer.Service
	logger  *logrus.Entry
}

// NewHandler builds the HTTP routes for the customer service.
func NewHandler(service *customer.Service, logger *logrus.Entry) http.Handler {
	s := &Server{service: service, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/api/customer", s.addCustomer).Methods(http.MethodPost)
	r.HandleFunc("/api/customer/{id}", s.getCustomer).Methods(http.MethodGet)
	r.HandleFunc("/api/customer/{id}", s.disableCustomer).Methods(http.MethodDelete)
	r.HandleFunc("/api/customers", s.listCustomers).Methods(http.MethodGet)
	return r
}

type addCustomerRequest struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipcode"`
}

func (s *Server) addCustomer(w http.ResponseWriter, r *http.Request) {
	var req addCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	created, err := s.service.AddCustomer(r.Context(), customer.Customer{
		Name:    req.Name,
		City:    req.City,
		State:   req.State,
		ZipCode: req.ZipCode,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getCustomer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	c, err := s.service.GetCustomer(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) disableCustomer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.service.DisableCustomer(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.service.ListCustomers(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if customers == nil {
		customers = []customer.Customer{}
	}
	s.writeJSON(w, http.StatusOK, customers)
}

// writeDomainError maps domain errors to client status codes and everything
// else to a server-side failure.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var storeErr *eventsourcing.EventStoreError
	switch {
	case errors.Is(err, customer.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err)
	case errors.Is(err, customer.ErrAlreadyExists):
		s.writeError(w, r, http.StatusConflict, err)
	case errors.As(err, &storeErr):
		s.writeError(w, r, http.StatusServiceUnavailable, err)
	default:
		s.writeError(w, r, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Errorf("%s %s failed", r.Method, r.URL.Path)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encode response")
	}
}

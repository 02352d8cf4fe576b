// Package handler exposes the catalogue, stateless quoting and entry
// sessions over JSON HTTP.
package handler

import (
	"net/http"

	"github.com/xenking/till/internal/domain/counterparty"
	"github.com/xenking/till/internal/domain/entry"
	"github.com/xenking/till/internal/domain/product"
)

// Deps are the handler collaborators.
type Deps struct {
	Products       product.Repository
	Counterparties counterparty.Repository
	Pricer         entry.Pricer
	Sessions       *entry.Manager
	Security       *Security
}

// Handler serves the /api routes.
type Handler struct {
	products       product.Repository
	counterparties counterparty.Repository
	pricer         entry.Pricer
	sessions       *entry.Manager
	security       *Security
}

// New constructs a Handler.
func New(deps Deps) *Handler {
	return &Handler{
		products:       deps.Products,
		counterparties: deps.Counterparties,
		pricer:         deps.Pricer,
		sessions:       deps.Sessions,
		security:       deps.Security,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	readCatalogue := func(fn http.HandlerFunc) http.HandlerFunc { return h.security.Require(ScopeCatalogue, fn) }
	useEntry := func(fn http.HandlerFunc) http.HandlerFunc { return h.security.Require(ScopeEntry, fn) }

	mux.HandleFunc("GET /api/products", readCatalogue(h.listProducts))
	mux.HandleFunc("GET /api/products/{id}", readCatalogue(h.getProduct))

	mux.HandleFunc("POST /api/quote", useEntry(h.quote))

	mux.HandleFunc("POST /api/sessions", useEntry(h.openSession))
	mux.HandleFunc("GET /api/sessions/{id}", useEntry(h.getSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", useEntry(h.closeSession))
	mux.HandleFunc("GET /api/sessions/{id}/quote", useEntry(h.quoteSession))
	mux.HandleFunc("PUT /api/sessions/{id}/counterparty", useEntry(h.setCounterparty))
	mux.HandleFunc("PUT /api/sessions/{id}/pricing", useEntry(h.setPricing))
	mux.HandleFunc("POST /api/sessions/{id}/items", useEntry(h.addItem))
	mux.HandleFunc("POST /api/sessions/{id}/items/confirm", useEntry(h.confirmItem))
	mux.HandleFunc("DELETE /api/sessions/{id}/items/pending", useEntry(h.declineItem))
	mux.HandleFunc("PATCH /api/sessions/{id}/items/{ref}", useEntry(h.updateItem))
	mux.HandleFunc("DELETE /api/sessions/{id}/items/{ref}", useEntry(h.removeItem))
	mux.HandleFunc("DELETE /api/sessions/{id}/items", useEntry(h.clearItems))
	mux.HandleFunc("POST /api/sessions/{id}/checkout", useEntry(h.checkout))
}

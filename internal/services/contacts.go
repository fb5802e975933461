package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/stipator/stipator/internal/store"
	"github.com/stipator/stipator/internal/trip"
)

// ContactDirectory is the mutable contact store behind the contacts API.
type ContactDirectory interface {
	trip.ContactStore
	Add(ctx context.Context, c trip.Contact) (string, error)
	Remove(ctx context.Context, userID, contactID string) error
}

// ContactHandler exposes trusted contact management over JSON HTTP:
//
//	POST   /api/v1/contacts                        add a contact
//	GET    /api/v1/contacts?user_id={id}           list a user's contacts
//	DELETE /api/v1/contacts/{id}?user_id={id}      remove a contact
type ContactHandler struct {
	contacts ContactDirectory
}

// NewContactHandler creates the HTTP handler for contact management.
func NewContactHandler(contacts ContactDirectory) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// ServeHTTP routes /api/v1/contacts requests.
func (h *ContactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/api/v1/contacts")
	if !ok {
		http.NotFound(w, r)
		return
	}
	rest = strings.Trim(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodPost:
		h.addContact(w, r)
	case rest == "" && r.Method == http.MethodGet:
		h.listContacts(w, r)
	case rest != "" && !strings.Contains(rest, "/") && r.Method == http.MethodDelete:
		h.removeContact(w, r, rest)
	default:
		http.NotFound(w, r)
	}
}

func (h *ContactHandler) addContact(w http.ResponseWriter, r *http.Request) {
	var c trip.Contact
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if c.UserID == "" || c.Name == "" || c.Phone == "" {
		writeError(w, http.StatusBadRequest, "user_id, name and phone are required")
		return
	}

	id, err := h.contacts.Add(r.Context(), c)
	if errors.Is(err, store.ErrTooManyContacts) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	c.ID = id
	writeJSON(w, http.StatusCreated, c)
}

func (h *ContactHandler) listContacts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	contacts, err := h.contacts.QueryByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

func (h *ContactHandler) removeContact(w http.ResponseWriter, r *http.Request, contactID string) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	err := h.contacts.Remove(r.Context(), userID, contactID)
	if errors.Is(err, store.ErrContactNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

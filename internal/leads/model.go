package leads

import (
	"strings"
	"time"
)

// StatusNew is the status assigned to every lead on creation. Later stages
// of the sales funnel move it forward through the admin screens.
const StatusNew = "new"

// Lead represents a prospective contact captured from the chat widget.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Message   string    `json:"message"`
	Service   string    `json:"service,omitempty"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateLeadRequest represents the fields for creating a lead
type CreateLeadRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Message string `json:"message"`
	Service string `json:"service"`
	Source  string `json:"source"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Phone) == "" {
		return ErrMissingPhone
	}
	return nil
}

// UpdateLeadRequest is a partial enrichment of an existing lead. Only fields
// that are non-nil are applied; name, phone, and message are deliberately not
// representable here so enrichment can never overwrite them.
type UpdateLeadRequest struct {
	Email   *string `json:"email,omitempty"`
	Service *string `json:"service,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (r *UpdateLeadRequest) IsEmpty() bool {
	return r == nil || (r.Email == nil && r.Service == nil)
}

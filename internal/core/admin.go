package core

import (
	"DroughtLedger/internal/domain"

	"github.com/google/uuid"
)

// AdminController gates privileged operations to the single authority
// principal. The authority is fixed at construction; rotation is an
// external concern.
type AdminController struct {
	authority uuid.UUID
}

func NewAdminController(authority uuid.UUID) *AdminController {
	return &AdminController{authority: authority}
}

// Authorize rejects any caller other than the configured authority.
func (ac *AdminController) Authorize(caller uuid.UUID) error {
	if caller != ac.authority {
		return domain.Errorf(domain.CodeUnauthorized, "caller %s is not the authority", caller)
	}
	return nil
}

// Authority returns the configured authority principal.
func (ac *AdminController) Authority() uuid.UUID {
	return ac.authority
}

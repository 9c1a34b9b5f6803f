package shared

import "github.com/google/uuid"

// OperationContext identifies the cooperative an operation works on and the
// administrator performing it. It is passed explicitly into every
// application call; nothing reads it from ambient state.
type OperationContext struct {
	CooperativeID uuid.UUID
	AdminID       uuid.UUID
}

// NewOperationContext validates and builds an operation context
func NewOperationContext(cooperativeID, adminID uuid.UUID) (OperationContext, error) {
	op := OperationContext{CooperativeID: cooperativeID, AdminID: adminID}
	if err := op.Validate(); err != nil {
		return OperationContext{}, err
	}
	return op, nil
}

// Validate ensures both identifiers are present
func (o OperationContext) Validate() error {
	if o.CooperativeID == uuid.Nil || o.AdminID == uuid.Nil {
		return ErrMissingOperationCtx
	}
	return nil
}

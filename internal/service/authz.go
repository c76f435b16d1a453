package service

import (
	"tourbook/internal/domain"
	"tourbook/internal/models"
)

// Actions a caller may attempt against a booking. Every handler path goes
// through authorize with one of these, so the ownership rules live in a
// single place.
const (
	actionView   = "view"
	actionCancel = "cancel"
	actionDecide = "decide"
	actionPay    = "pay"
	actionRefund = "refund"
)

func authorize(actor models.Actor, action string, booking *models.Booking) error {
	if actor.ID == "" {
		return domain.ErrAccessDenied
	}

	switch action {
	case actionCancel, actionPay:
		if actor.Role == models.RoleTraveler && booking.UserID == actor.ID {
			return nil
		}
	case actionDecide:
		if actor.Role == models.RoleOperator && booking.OperatorID == actor.ID {
			return nil
		}
	case actionRefund:
		if actor.Role == models.RoleAdmin {
			return nil
		}
		if actor.Role == models.RoleOperator && booking.OperatorID == actor.ID {
			return nil
		}
	case actionView:
		if actor.Role == models.RoleAdmin {
			return nil
		}
		if booking.UserID == actor.ID || (actor.Role == models.RoleOperator && booking.OperatorID == actor.ID) {
			return nil
		}
	}

	return domain.ErrAccessDenied
}

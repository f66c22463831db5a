package listing

import "fmt"

// TransitionError names an illegal lifecycle request. It is never retried
// and guarantees no remote call was made.
type TransitionError struct {
	Action        Action
	ListingStatus Status
	SourceStatus  SourceItemStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("action %q is not allowed while listing is %q and source item is %q",
		e.Action, e.ListingStatus, e.SourceStatus)
}

// Transition is the status pair after an accepted action
type Transition struct {
	Listing Status
	Source  SourceItemStatus
}

// Validate applies the lifecycle transition table: given the current status
// pair and a requested action it returns the next status pair, or a
// *TransitionError if the request is illegal from the current state.
//
//	withdraw  listing active                  -> listing withdrawn
//	relist    listing withdrawn + relistable  -> listing active
//	sync      always legal                    -> unchanged (remote truth wins)
//	purchase  source purchasable              -> source purchased
//	sales     listing active or sold          -> listing completed
//
// Pure validation, no I/O.
func Validate(variant SourceVariant, current Status, source SourceItemStatus, action Action) (Transition, error) {
	switch action {
	case ActionWithdraw:
		if current == StatusActive {
			return Transition{Listing: StatusWithdrawn, Source: source}, nil
		}

	case ActionRelist:
		if current == StatusWithdrawn && relistAllowed(variant, source) {
			return Transition{Listing: StatusActive, Source: source}, nil
		}

	case ActionSync:
		// Not a transition in the classical sense: a read-through refresh
		// that replaces local status with whatever the remote reports.
		return Transition{Listing: current, Source: source}, nil

	case ActionPurchase:
		if source == SourceStatusPurchasable {
			return Transition{Listing: current, Source: SourceStatusPurchased}, nil
		}

	case ActionSales:
		if current == StatusActive || current == StatusSold {
			return Transition{Listing: StatusCompleted, Source: source}, nil
		}
	}

	return Transition{}, &TransitionError{
		Action:        action,
		ListingStatus: current,
		SourceStatus:  source,
	}
}

// relistAllowed preserves the observed variant asymmetry: auction items must
// still be purchasable, freemarket items may already be purchased. The
// difference is deliberate upstream behavior and is kept, not reconciled.
func relistAllowed(variant SourceVariant, source SourceItemStatus) bool {
	switch variant {
	case VariantAuction:
		return source == SourceStatusPurchasable
	case VariantFreemarket:
		return source != SourceStatusUnpurchasable
	default:
		return false
	}
}

package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_TransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		variant SourceVariant
		current Status
		source  SourceItemStatus
		action  Action
		want    Transition
	}{
		{
			name:    "withdraw active listing",
			variant: VariantAuction,
			current: StatusActive,
			source:  SourceStatusPurchasable,
			action:  ActionWithdraw,
			want:    Transition{Listing: StatusWithdrawn, Source: SourceStatusPurchasable},
		},
		{
			name:    "relist withdrawn auction listing with purchasable item",
			variant: VariantAuction,
			current: StatusWithdrawn,
			source:  SourceStatusPurchasable,
			action:  ActionRelist,
			want:    Transition{Listing: StatusActive, Source: SourceStatusPurchasable},
		},
		{
			name:    "relist withdrawn freemarket listing with purchased item",
			variant: VariantFreemarket,
			current: StatusWithdrawn,
			source:  SourceStatusPurchased,
			action:  ActionRelist,
			want:    Transition{Listing: StatusActive, Source: SourceStatusPurchased},
		},
		{
			name:    "purchase purchasable item",
			variant: VariantFreemarket,
			current: StatusActive,
			source:  SourceStatusPurchasable,
			action:  ActionPurchase,
			want:    Transition{Listing: StatusActive, Source: SourceStatusPurchased},
		},
		{
			name:    "register sale on active listing",
			variant: VariantAuction,
			current: StatusActive,
			source:  SourceStatusPurchased,
			action:  ActionSales,
			want:    Transition{Listing: StatusCompleted, Source: SourceStatusPurchased},
		},
		{
			name:    "register sale on sold listing",
			variant: VariantAuction,
			current: StatusSold,
			source:  SourceStatusPurchased,
			action:  ActionSales,
			want:    Transition{Listing: StatusCompleted, Source: SourceStatusPurchased},
		},
		{
			name:    "sync is legal from any state",
			variant: VariantAuction,
			current: StatusFailed,
			source:  SourceStatusUnpurchasable,
			action:  ActionSync,
			want:    Transition{Listing: StatusFailed, Source: SourceStatusUnpurchasable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.variant, tt.current, tt.source, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		variant SourceVariant
		current Status
		source  SourceItemStatus
		action  Action
	}{
		{
			name:    "withdraw a withdrawn listing",
			variant: VariantAuction,
			current: StatusWithdrawn,
			source:  SourceStatusPurchasable,
			action:  ActionWithdraw,
		},
		{
			name:    "relist an active listing",
			variant: VariantAuction,
			current: StatusActive,
			source:  SourceStatusPurchasable,
			action:  ActionRelist,
		},
		{
			name:    "relist auction listing with purchased item",
			variant: VariantAuction,
			current: StatusWithdrawn,
			source:  SourceStatusPurchased,
			action:  ActionRelist,
		},
		{
			name:    "relist auction listing with unpurchasable item",
			variant: VariantAuction,
			current: StatusWithdrawn,
			source:  SourceStatusUnpurchasable,
			action:  ActionRelist,
		},
		{
			name:    "relist freemarket listing with unpurchasable item",
			variant: VariantFreemarket,
			current: StatusWithdrawn,
			source:  SourceStatusUnpurchasable,
			action:  ActionRelist,
		},
		{
			name:    "purchase an already purchased item",
			variant: VariantFreemarket,
			current: StatusActive,
			source:  SourceStatusPurchased,
			action:  ActionPurchase,
		},
		{
			name:    "purchase an unpurchasable item",
			variant: VariantAuction,
			current: StatusActive,
			source:  SourceStatusUnpurchasable,
			action:  ActionPurchase,
		},
		{
			name:    "register sale on withdrawn listing",
			variant: VariantAuction,
			current: StatusWithdrawn,
			source:  SourceStatusPurchased,
			action:  ActionSales,
		},
		{
			name:    "register sale on completed listing",
			variant: VariantAuction,
			current: StatusCompleted,
			source:  SourceStatusPurchased,
			action:  ActionSales,
		},
		{
			name:    "unknown action",
			variant: VariantAuction,
			current: StatusActive,
			source:  SourceStatusPurchasable,
			action:  Action("destroy"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.variant, tt.current, tt.source, tt.action)

			var transitionErr *TransitionError
			require.ErrorAs(t, err, &transitionErr)
			assert.Equal(t, tt.action, transitionErr.Action)
			assert.Equal(t, tt.current, transitionErr.ListingStatus)
		})
	}
}

// TestValidate_Closure: every (status, action) pair not in the transition
// table must be rejected; the table rows above are the only accepted ones.
func TestValidate_Closure(t *testing.T) {
	listingStatuses := []Status{StatusActive, StatusWithdrawn, StatusSold, StatusCompleted, StatusFailed}
	sourceStatuses := []SourceItemStatus{SourceStatusPurchasable, SourceStatusPurchased, SourceStatusUnpurchasable}
	actions := []Action{ActionWithdraw, ActionRelist, ActionSync, ActionPurchase, ActionSales}
	variants := []SourceVariant{VariantAuction, VariantFreemarket}

	allowed := func(v SourceVariant, ls Status, ss SourceItemStatus, a Action) bool {
		switch a {
		case ActionWithdraw:
			return ls == StatusActive
		case ActionRelist:
			if ls != StatusWithdrawn {
				return false
			}
			if v == VariantAuction {
				return ss == SourceStatusPurchasable
			}
			return ss != SourceStatusUnpurchasable
		case ActionSync:
			return true
		case ActionPurchase:
			return ss == SourceStatusPurchasable
		case ActionSales:
			return ls == StatusActive || ls == StatusSold
		}
		return false
	}

	for _, v := range variants {
		for _, ls := range listingStatuses {
			for _, ss := range sourceStatuses {
				for _, a := range actions {
					_, err := Validate(v, ls, ss, a)
					if allowed(v, ls, ss, a) {
						assert.NoError(t, err, "%s/%s/%s/%s", v, ls, ss, a)
					} else {
						assert.Error(t, err, "%s/%s/%s/%s", v, ls, ss, a)
					}
				}
			}
		}
	}
}

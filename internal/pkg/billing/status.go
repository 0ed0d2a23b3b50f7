package billing

import (
	"strings"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

func normalizeTier(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.SubscriptionTierMonth, models.SubscriptionTierYear:
		return i
	default:
		return ""
	}
}

// mapSubscriptionStatus converts a provider subscription status into the
// account status vocabulary.
func mapSubscriptionStatus(status string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "trialing":
		return models.SubscriptionStatusTrialing, true
	case "active":
		return models.SubscriptionStatusActive, true
	case "past_due":
		return models.SubscriptionStatusPastDue, true
	case "unpaid":
		return models.SubscriptionStatusUnpaid, true
	case "canceled", "cancelled", "incomplete_expired":
		return models.SubscriptionStatusCancelled, true
	case "incomplete", "paused":
		return models.SubscriptionStatusInactive, true
	default:
		return "", false
	}
}

// isStaleAfterCancel reports whether an update names the subscription that
// already reached the terminal cancelled state on this account.
func isStaleAfterCancel(account *models.Account, subscriptionID, status string) bool {
	if !account.IsCancelled() || status == models.SubscriptionStatusCancelled {
		return false
	}
	return account.CurrentSubscriptionID() != "" && account.CurrentSubscriptionID() == subscriptionID
}

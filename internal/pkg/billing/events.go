package billing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

// EventKind enumerates the event variants the reconciler understands.
type EventKind int

const (
	KindIgnored EventKind = iota
	KindSubscriptionChanged
	KindSubscriptionDeleted
	KindCheckoutCompleted
)

func (k EventKind) String() string {
	switch k {
	case KindSubscriptionChanged:
		return "subscription_changed"
	case KindSubscriptionDeleted:
		return "subscription_deleted"
	case KindCheckoutCompleted:
		return "checkout_completed"
	default:
		return "ignored"
	}
}

// Event is a decoded webhook event. Exactly one payload is set for the
// subscription and checkout kinds; ignored events carry none.
type Event struct {
	ID           string
	Type         string
	Kind         EventKind
	Subscription *SubscriptionPayload
	Checkout     *CheckoutPayload
}

// Metadata keys written by checkout session creation.
const (
	MetaReferralCode = "referralCode"
	MetaProductIDs   = "productIds"
	MetaProductID    = "productId"
	MetaProductNames = "productNames"
	MetaProductName  = "productName"
	MetaAccountID    = "accountId"
	MetaLegacyUserID = "firebaseUID"
)

const paymentStatusPaid = "paid"

const defaultCurrency = "usd"

// SubscriptionPayload is the subscription object of a subscription event.
type SubscriptionPayload struct {
	ID                 string            `json:"id" validate:"required"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	BillingCycleAnchor int64             `json:"billing_cycle_anchor"`
	Items              subscriptionItems `json:"items"`
	Metadata           map[string]string `json:"metadata"`
}

type subscriptionItems struct {
	Data []SubscriptionItem `json:"data"`
}

// SubscriptionItem is one priced line of a subscription.
type SubscriptionItem struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
	Price              struct {
		ID        string `json:"id"`
		Recurring *struct {
			Interval string `json:"interval"`
		} `json:"recurring"`
	} `json:"price"`
}

func (s *SubscriptionPayload) firstItem() *SubscriptionItem {
	if len(s.Items.Data) == 0 {
		return nil
	}
	return &s.Items.Data[0]
}

// Tier is the billing interval of the first line item.
func (s *SubscriptionPayload) Tier() string {
	item := s.firstItem()
	if item == nil || item.Price.Recurring == nil {
		return ""
	}
	return normalizeTier(item.Price.Recurring.Interval)
}

// PeriodStart prefers the item period, then the subscription period, then
// the billing cycle anchor.
func (s *SubscriptionPayload) PeriodStart() *time.Time {
	if item := s.firstItem(); item != nil && item.CurrentPeriodStart > 0 {
		return unixTime(item.CurrentPeriodStart)
	}
	if s.CurrentPeriodStart > 0 {
		return unixTime(s.CurrentPeriodStart)
	}
	return unixTime(s.BillingCycleAnchor)
}

func (s *SubscriptionPayload) PeriodEnd() *time.Time {
	if item := s.firstItem(); item != nil && item.CurrentPeriodEnd > 0 {
		return unixTime(item.CurrentPeriodEnd)
	}
	return unixTime(s.CurrentPeriodEnd)
}

// MetadataAccountID returns the account id embedded at checkout, if any.
func (s *SubscriptionPayload) MetadataAccountID() string {
	if id := strings.TrimSpace(s.Metadata[MetaAccountID]); id != "" {
		return id
	}
	return strings.TrimSpace(s.Metadata[MetaLegacyUserID])
}

// CheckoutPayload is the session object of a completed checkout.
type CheckoutPayload struct {
	ID              string `json:"id" validate:"required"`
	Mode            string `json:"mode"`
	PaymentStatus   string `json:"payment_status" validate:"required"`
	AmountTotal     int64  `json:"amount_total" validate:"gte=0"`
	Currency        string `json:"currency"`
	Customer        string `json:"customer"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// IsPaid reports whether the session captured a payment.
func (c *CheckoutPayload) IsPaid() bool {
	return c.PaymentStatus == paymentStatusPaid
}

func (c *CheckoutPayload) ReferralCode() string {
	return strings.TrimSpace(c.Metadata[MetaReferralCode])
}

// Email is the customer email, lowercased.
func (c *CheckoutPayload) Email() string {
	email := strings.TrimSpace(c.CustomerDetails.Email)
	if email == "" {
		email = strings.TrimSpace(c.CustomerEmail)
	}
	return strings.ToLower(email)
}

// ProductIDs lists the purchased storefront products. Subscriptions carry none.
func (c *CheckoutPayload) ProductIDs() []string {
	if raw := c.Metadata[MetaProductIDs]; strings.TrimSpace(raw) != "" {
		return models.SplitList(raw, models.ProductIDSeparator)
	}
	return models.SplitList(c.Metadata[MetaProductID], models.ProductIDSeparator)
}

func (c *CheckoutPayload) ProductNames() []string {
	if raw := c.Metadata[MetaProductNames]; strings.TrimSpace(raw) != "" {
		return models.SplitList(raw, models.ProductNameSeparator)
	}
	name := strings.TrimSpace(c.Metadata[MetaProductName])
	if name == "" {
		return nil
	}
	return []string{name}
}

// SaleType is store when the session names products, subscription otherwise.
// It agrees with ProductIDs, so every sale that grants access is a store sale.
func (c *CheckoutPayload) SaleType() string {
	if len(c.ProductIDs()) > 0 {
		return models.SaleTypeStore
	}
	return models.SaleTypeSubscription
}

// Amount converts the minor-unit total into a two decimal amount.
func (c *CheckoutPayload) Amount() decimal.Decimal {
	return MinorUnitsToAmount(c.AmountTotal)
}

func (c *CheckoutPayload) CurrencyCode() string {
	cur := strings.ToLower(strings.TrimSpace(c.Currency))
	if cur == "" {
		return defaultCurrency
	}
	return cur
}

var payloadValidator = validator.New()

// DecodeEvent turns a verified envelope into the typed event for its kind.
// Unknown event types decode to KindIgnored.
func DecodeEvent(raw stripe.Event) (*Event, error) {
	ev := &Event{ID: strings.TrimSpace(raw.ID), Type: string(raw.Type)}

	switch raw.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		ev.Kind = KindSubscriptionChanged
	case "customer.subscription.deleted":
		ev.Kind = KindSubscriptionDeleted
	case "checkout.session.completed":
		ev.Kind = KindCheckoutCompleted
	default:
		ev.Kind = KindIgnored
		return ev, nil
	}

	if raw.Data == nil || len(raw.Data.Raw) == 0 {
		return nil, validationErr("%s: missing data object", raw.Type)
	}

	switch ev.Kind {
	case KindSubscriptionChanged, KindSubscriptionDeleted:
		var sub SubscriptionPayload
		if err := decodeObject(raw.Data.Raw, &sub); err != nil {
			return nil, validationErr("%s: %v", raw.Type, err)
		}
		if ev.Kind == KindSubscriptionChanged {
			if _, ok := mapSubscriptionStatus(sub.Status); !ok {
				return nil, validationErr("%s: unknown subscription status %q", raw.Type, sub.Status)
			}
		}
		if strings.TrimSpace(sub.Customer) == "" && sub.MetadataAccountID() == "" {
			return nil, validationErr("%s: no customer or account reference", raw.Type)
		}
		ev.Subscription = &sub
	case KindCheckoutCompleted:
		var session CheckoutPayload
		if err := decodeObject(raw.Data.Raw, &session); err != nil {
			return nil, validationErr("%s: %v", raw.Type, err)
		}
		ev.Checkout = &session
	}
	return ev, nil
}

func decodeObject(data []byte, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return err
	}
	return payloadValidator.Struct(out)
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

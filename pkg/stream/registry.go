package stream

import (
	"fmt"
	"net/url"
)

// incremental builds the common shape shared by most top-level Stripe
// streams: own list endpoint, "created" cursor.
func incremental(name, path string) Config {
	return Config{Name: name, Path: path, CursorField: "created"}
}

// catalog is the declarative registry of concrete streams. Sub-streams
// reference their parent configs directly; the parent chain is rebuilt
// per read, so sharing the structs here is safe.
var catalog = buildCatalog()

func buildCatalog() []Config {
	customers := incremental("customers", "customers")
	invoices := incremental("invoices", "invoices")
	subscriptions := Config{
		Name:        "subscriptions",
		Path:        "subscriptions",
		CursorField: "created",
		ExtraParams: url.Values{"status": {"all"}},
	}
	checkoutSessions := Config{Name: "checkout_sessions", Path: "checkout/sessions"}

	return []Config{
		customers,
		incremental("balance_transactions", "balance_transactions"),
		incremental("charges", "charges"),
		incremental("coupons", "coupons"),
		incremental("disputes", "disputes"),
		incremental("events", "events"),
		invoices,
		{Name: "invoice_items", Path: "invoiceitems", CursorField: "date"},
		incremental("payouts", "payouts"),
		incremental("plans", "plans"),
		incremental("products", "products"),
		subscriptions,
		incremental("transfers", "transfers"),
		incremental("refunds", "refunds"),
		incremental("payment_intents", "payment_intents"),
		incremental("promotion_codes", "promotion_codes"),
		checkoutSessions,
		{
			Name:     "customer_balance_transactions",
			Parent:   &customers,
			ParentID: "customer_id",
			PathFunc: func(slice Slice) string {
				return fmt.Sprintf("customers/%s/balance_transactions", slice["customer_id"])
			},
		},
		{
			Name:         "invoice_line_items",
			Parent:       &invoices,
			ParentID:     "invoice_id",
			SubItemsAttr: "lines",
			AddParentID:  true,
			PathFunc: func(slice Slice) string {
				return fmt.Sprintf("invoices/%s/lines", slice["invoice_id"])
			},
		},
		{
			Name:         "subscription_items",
			Path:         "subscription_items",
			Parent:       &subscriptions,
			ParentID:     "subscription_id",
			SubItemsAttr: "items",
			SliceParams: func(slice Slice) url.Values {
				return url.Values{"subscription": {slice["subscription_id"]}}
			},
		},
		{
			Name:         "bank_accounts",
			Parent:       &customers,
			ParentID:     "customer_id",
			SubItemsAttr: "sources",
			Filter:       &Filter{Attr: "object", Value: "bank_account"},
			ExtraParams:  url.Values{"object": {"bank_account"}},
			PathFunc: func(slice Slice) string {
				return fmt.Sprintf("customers/%s/sources", slice["customer_id"])
			},
		},
		{
			Name:        "checkout_sessions_line_items",
			Parent:      &checkoutSessions,
			ParentID:    "checkout_session_id",
			AddParentID: true,
			ExtraParams: url.Values{"expand[]": {"data.discounts", "data.taxes"}},
			// A session created before line items were recorded returns
			// 404; treat it as an empty result.
			TolerateStatuses: []int{404},
			PathFunc: func(slice Slice) string {
				return fmt.Sprintf("checkout/sessions/%s/line_items", slice["checkout_session_id"])
			},
		},
	}
}

// Catalog returns the configurations of all known streams.
func Catalog() []Config {
	out := make([]Config, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the configuration for a stream by name.
func Lookup(name string) (Config, error) {
	for _, cfg := range catalog {
		if cfg.Name == name {
			return cfg, nil
		}
	}
	return Config{}, fmt.Errorf("%w: %q", ErrUnknownStream, name)
}

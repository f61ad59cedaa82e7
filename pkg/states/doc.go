// Package states provides the closed set of State implementations: order
// progress, delivery status and merchant activity.
//
// Each implementation owns a cache keyed by entity identity, refreshed from
// its upstream source by the broadcast cycle engine, and produces filtered
// JSON views per subscriber. The variants differ only in upstream source and
// filter semantics; cache discipline is shared.
//
// # Filter Fields
//
// Filters come from the subscription's RequestContext:
//
//   - OrderState: "view" selects the customer (default) or merchant
//     projection; "fields" optionally narrows the view to a comma-separated
//     subset of its keys.
//   - DeliveryState: "precision" is "exact" (default) or "coarse"; coarse
//     rounds courier coordinates for privacy.
//   - MerchantState: "include_queue" ("true"/"false") controls whether live
//     queue figures are included.
//
// Malformed filter values fail the read with stream.ErrFilterInvalid, which
// is terminal for that subscription.
package states

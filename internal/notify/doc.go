// Package notify is the notification dispatch engine.
//
// Domain events (media requests, issue reports, comments, status changes)
// arrive as channel-agnostic Payload values tagged with a Kind. The Manager
// broadcasts each payload to every registered channel Agent whose gate
// passes; each agent renders the payload into its own wire format and
// resolves its own recipients (system destination, directly-affected user,
// eligible administrators).
//
// Delivery is best-effort by design: there are no retries, no ordering
// guarantees across channels or recipients, and at most one attempt per
// recipient per event. One bad recipient or one misconfigured channel never
// blocks the others; failures are observable through the Reporter side
// channel (logs, bus events, audit records), not through return values.
package notify

// Package api defines the wire-format types exchanged between the sortbin
// daemon's HTTP server and its clients, plus a small client used by the CLI.
//
// Management routes under /api use camelCase JSON tags. The camera-facing
// /image and /distance routes keep the lowercase status/message envelope the
// capture device firmware already parses.
//
// FromSnapshot, FromUser and FromDisposal translate internal models into DTOs
// so consumers never couple to session or ledger types.
package api

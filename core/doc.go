// Package core holds the lead webhook domain: event types, targets, leads,
// configuration and the contracts the dispatch and delivery packages share.
package core

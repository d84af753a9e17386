package tenantstore

import (
	"encoding/json"
	"errors"
)

var ErrUnknownKind = errors.New("unknown data kind")

// KnownKinds lists the record collections a user may keep.
var KnownKinds = []string{
	"matters",
	"documents",
	"time_entries",
	"invoices",
	"tasks",
	"events",
	"court_deadlines",
	"search_history",
	"search_collections",
	"saved_searches",
	"portal_clients",
	"billing_settings",
	"dashboard_views",
}

var knownKinds = func() map[string]bool {
	m := make(map[string]bool, len(KnownKinds))
	for _, k := range KnownKinds {
		m[k] = true
	}
	return m
}()

func IsKnownKind(kind string) bool {
	return knownKinds[kind]
}

// DefaultValue is what a user with no record of kind sees. Settings are an
// object, everything else a list.
func DefaultValue(kind string) json.RawMessage {
	if kind == "billing_settings" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(`[]`)
}

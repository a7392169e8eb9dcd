// Package filter provides the filter and extractor descriptors used to query
// named maps and to register filter based listeners.
//
// Descriptors are plain values tagged with a class name. They are encoded by
// the session serializer and evaluated on the cluster, the client never
// evaluates them. Two filters built the same way serialize to the same bytes,
// so listeners registered with equal filters share one subscription.
//
// Usage:
//
//	adults := filter.Greater(filter.Extract("age"), 17)
//	inUlm := filter.Equal(filter.Extract("address.city"), "Ulm")
//	f := adults.And(inUlm)
//
//	// only insert and update events of matching entries
//	ev := filter.MapEvent(filter.Inserted|filter.Updated, f)
package filter

package esrt

import "strings"

// StreamID builds the deterministic full stream id for one aggregate
// instance: "<app>:<aggregate>:<id>". Aggregate and app names that are
// namespaced (contain a '/') are rendered "<ns>.<name>", matching the
// "<ns>.<name>" stringification spec §4.2 calls for namespaced names.
func StreamID(app, aggregate, id string) string {
	return stringify(app) + ":" + stringify(aggregate) + ":" + stringify(id)
}

func stringify(s string) string {
	return strings.ReplaceAll(s, "/", ".")
}

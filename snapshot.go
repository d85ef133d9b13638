package esrt

// Snapshot is the opaque {meta, data} record an aggregate's current state
// can be captured into, so rehydration need not replay the full stream
// (spec §3). A Snapshot with Found=false means rehydration starts from the
// initial version.
type Snapshot struct {
	Meta  Meta
	Data  any
	Found bool
}

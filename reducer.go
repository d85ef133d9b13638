package esrt

// DeepMergeReducer is the default per-event reducer (spec §4.5/§9): for
// mapping values, merge keyed; for every other value, including sequences,
// replace. A nil state is replaced wholesale by data, copied so the caller
// never observes the event's own map being aliased into aggregate state.
func DeepMergeReducer(state any, data map[string]any) any {
	if state == nil {
		return deepCopyMap(data)
	}
	m, ok := state.(map[string]any)
	if !ok {
		return deepCopyMap(data)
	}
	return deepMerge(m, data)
}

func deepMerge(state, data map[string]any) map[string]any {
	out := make(map[string]any, len(state)+len(data))
	for k, v := range state {
		out[k] = v
	}
	for k, v := range data {
		if existing, ok := out[k]; ok {
			if em, ok1 := existing.(map[string]any); ok1 {
				if dm, ok2 := v.(map[string]any); ok2 {
					out[k] = deepMerge(em, dm)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

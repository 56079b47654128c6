package store

// mergeDepth merges src into dst down to depth levels and returns a new map.
// At the last level src values replace dst values; keys only in dst are kept.
// Neither input is modified.
func mergeDepth(depth int, dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		if depth > 1 {
			dm, dok := dst[k].(map[string]any)
			sm, sok := sv.(map[string]any)
			if dok && sok {
				out[k] = mergeDepth(depth-1, dm, sm)
				continue
			}
		}
		out[k] = sv
	}
	return out
}

package remote

import "sort"

// The participant set is canonically an ordered []string everywhere inside
// the client. Some remote deployments store it as a uid→true map instead;
// the two shapes are converted here, at the remote boundary, and nowhere
// else.

// EncodeParticipants converts the canonical ordered participant list to
// the uid→true map shape used by map-based remote schemas.
func EncodeParticipants(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// DecodeParticipants converts any of the participant shapes seen on the
// wire into the canonical ordered list. List shapes keep their order; map
// shapes are sorted by uid since a map carries none.
func DecodeParticipants(v any) []string {
	switch p := v.(type) {
	case []string:
		return append([]string(nil), p...)
	case []any:
		ids := make([]string, 0, len(p))
		for _, e := range p {
			if s, ok := e.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	case map[string]bool:
		ids := make([]string, 0, len(p))
		for id, ok := range p {
			if ok {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		return ids
	case map[string]any:
		ids := make([]string, 0, len(p))
		for id, e := range p {
			if b, ok := e.(bool); ok && b {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		return ids
	default:
		return nil
	}
}

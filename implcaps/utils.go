package implcaps

import "github.com/shimmeringbee/zigbee"

func Get[T any](m map[string]any, k string, def T) T {
	if v, ok := m[k]; ok {
		if cV, ok := v.(T); ok {
			return cV
		}
	}

	return def
}

// GetEndpoint coerces an endpoint from capability settings, accepting the
// integer types the rules engine produces as well as a native endpoint.
func GetEndpoint(m map[string]any, k string, def zigbee.Endpoint) zigbee.Endpoint {
	switch v := m[k].(type) {
	case zigbee.Endpoint:
		return v
	case int:
		return zigbee.Endpoint(v)
	case int64:
		return zigbee.Endpoint(v)
	case float64:
		return zigbee.Endpoint(v)
	default:
		return def
	}
}

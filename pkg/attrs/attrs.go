package attrs

// ExtractString extracts a string value from a key-value attribute slice
// formatted as [key1, value1, key2, value2, ...]. Returns "" when the key
// is absent or the value is not a string.
func ExtractString(kvs []any, key string) string {
	for i := 0; i < len(kvs)-1; i += 2 {
		k, ok := kvs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := kvs[i+1].(string); ok {
			return v
		}
		if v, ok := kvs[i+1].(interface{ String() string }); ok {
			return v.String()
		}
	}
	return ""
}

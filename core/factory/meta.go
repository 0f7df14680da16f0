package factory

// MapMeta collects declared metadata, keeping first-declaration order. A key
// declared twice keeps its position and takes the latest value.
type MapMeta struct {
	keys   []string
	values map[string]string
}

// NewMapMeta returns an empty sink.
func NewMapMeta() *MapMeta {
	return &MapMeta{values: make(map[string]string)}
}

// Declare implements Meta.
func (m *MapMeta) Declare(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value declared for key.
func (m *MapMeta) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the declared keys in order.
func (m *MapMeta) Keys() []string { return cloneList(m.keys) }

// Len returns the number of distinct keys.
func (m *MapMeta) Len() int { return len(m.keys) }

// Map returns a copy of the declared pairs.
func (m *MapMeta) Map() map[string]string {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// MetaFunc adapts a function to the Meta interface.
type MetaFunc func(key, value string)

// Declare implements Meta.
func (f MetaFunc) Declare(key, value string) { f(key, value) }

package headers

// Header names written by the basic header step.
const (
	ListUnsubscribe = "List-Unsubscribe"
	MessageID       = "Message-ID"
	Precedence      = "Precedence"
	JobID           = "job_id"
	From            = "From"
	ReplyTo         = "Reply-To"
)

// Map is an ordered set of mail headers. Keys are case-sensitive and unique;
// iteration follows insertion order. The zero value is ready to use.
type Map struct {
	keys   []string
	values map[string]string
}

// New returns a Map holding the given key/value pairs in order.
// A trailing key without a value is ignored.
func New(pairs ...string) *Map {
	m := &Map{}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// Get returns the value stored for key.
func (m *Map) Get(key string) (string, bool) {
	if m == nil || m.values == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key. An existing key keeps its position.
func (m *Map) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Del removes key if present.
func (m *Map) Del(key string) {
	if m == nil || m.values == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of headers.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the header names in order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Each calls fn for every header in order.
func (m *Map) Each(fn func(key, value string)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// Clone returns an independent copy of m. Cloning nil yields an empty Map.
func (m *Map) Clone() *Map {
	out := &Map{}
	m.Each(out.Set)
	return out
}

// Merge combines computed defaults with headers a task already carries.
// Values in existing win over computed ones. The result lists computed keys
// first, in computed order, followed by keys only present in existing.
// Neither argument is modified.
func Merge(computed, existing *Map) *Map {
	out := computed.Clone()
	existing.Each(out.Set)
	return out
}

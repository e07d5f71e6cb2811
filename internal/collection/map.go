package collection

import "sync"

// SyncMap is a map guarded by a RWMutex. Batch operations apply under a single
// lock so readers observe either none or all of a batch.
type SyncMap[K comparable, V any] struct {
	m   map[K]V
	mux sync.RWMutex
}

// GetAll returns the values present for keys; missing keys are omitted.
func (m *SyncMap[K, V]) GetAll(keys ...K) map[K]V {
	m.mux.RLock()
	defer m.mux.RUnlock()
	ret := make(map[K]V, len(keys))
	for _, k := range keys {
		if v, ok := m.m[k]; ok {
			ret[k] = v
		}
	}
	return ret
}

// PutAll stores every entry of values under one lock.
func (m *SyncMap[K, V]) PutAll(values map[K]V) {
	m.mux.Lock()
	defer m.mux.Unlock()
	for k, v := range values {
		m.m[k] = v
	}
}

func (m *SyncMap[K, V]) Delete(keys ...K) {
	m.mux.Lock()
	defer m.mux.Unlock()
	for _, k := range keys {
		delete(m.m, k)
	}
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{m: make(map[K]V)}
}

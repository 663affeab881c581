package config

import (
	"reflect"
	"sync"
)

// entry is one parsed configuration type.
type entry struct {
	once  sync.Once
	value any
	err   error
}

// cache maps a configuration type to its entry.
var cache sync.Map // reflect.Type -> *entry

func typeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

func lookup(t reflect.Type) *entry {
	e, _ := cache.LoadOrStore(t, &entry{})
	return e.(*entry)
}

// ResetCache forgets every loaded configuration.
func ResetCache() {
	cache.Clear()
}

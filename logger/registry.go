package logger

import (
	"slices"
	"sync"
)

// Components are the names the guard packages pass to OrDefault.
var Components = []string{
	"timeout", "traversal", "memory", "breaker", "ratelimiter", "bulkhead",
	"fanout", "retry", "loop", "health", "redisqueue", "server",
}

var registry = struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
}{loggers: make(map[string]*Logger)}

// Register stores l under name, replacing any earlier logger.
func Register(name string, l *Logger) {
	registry.mu.Lock()
	registry.loggers[name] = l
	registry.mu.Unlock()
}

// Get returns the logger registered under name, or the global logger tagged
// with name as its component.
func Get(name string) *Logger {
	registry.mu.RLock()
	l, ok := registry.loggers[name]
	registry.mu.RUnlock()
	if ok {
		return l
	}
	return GetGlobalLogger().WithComponent(name)
}

// Registered returns the registered names, sorted.
func Registered() []string {
	registry.mu.RLock()
	names := make([]string, 0, len(registry.loggers))
	for name := range registry.loggers {
		names = append(names, name)
	}
	registry.mu.RUnlock()
	slices.Sort(names)
	return names
}

// RegisterDefaults registers a component logger derived from the current
// global logger for each name, or for Components when none are given. Call it
// after SetGlobalLogger.
func RegisterDefaults(names ...string) {
	if len(names) == 0 {
		names = Components
	}
	global := GetGlobalLogger()
	for _, name := range names {
		Register(name, global.WithComponent(name))
	}
}

package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Context is a per-request bag of structured fields. Handlers create one per
// request, hand it to the engine, and log it once the request finishes.
// It is safe for concurrent use, so fan-out sub-tasks may write into it.
type Context struct {
	mu     sync.RWMutex
	fields logrus.Fields
}

// NewContext creates an empty telemetry context
func NewContext() *Context {
	return &Context{fields: make(logrus.Fields)}
}

// Put sets a field, replacing any previous value
func (c *Context) Put(key string, value interface{}) {
	c.mu.Lock()
	c.fields[key] = value
	c.mu.Unlock()
}

// Get returns the value stored for key
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.fields[key]
	return v, ok
}

// Fields returns a snapshot of all fields
func (c *Context) Fields() logrus.Fields {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(logrus.Fields, len(c.fields))
	for k, v := range c.fields {
		snapshot[k] = v
	}
	return snapshot
}

// Len returns the number of fields
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fields)
}

// Clear drops every field
func (c *Context) Clear() {
	c.mu.Lock()
	c.fields = make(logrus.Fields)
	c.mu.Unlock()
}

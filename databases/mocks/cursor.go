package mocks

import (
	"context"
	"reflect"
)

// Cursor is an in memory databases.CursorHelper over a fixed list of
// documents. Decode copies the current document into a pointer of the
// same type.
type Cursor struct {
	Docs   []interface{}
	Failed error
	Closed bool
	pos    int
}

// NewCursor returns a cursor positioned before the first document
func NewCursor(docs ...interface{}) *Cursor {
	return &Cursor{Docs: docs, pos: -1}
}

// Next advances the cursor
func (c *Cursor) Next(ctx context.Context) bool {
	if c.pos+1 >= len(c.Docs) {
		return false
	}
	c.pos++
	return true
}

// Decode copies the current document into v
func (c *Cursor) Decode(v interface{}) error {
	reflect.ValueOf(v).Elem().Set(reflect.ValueOf(c.Docs[c.pos]))
	return nil
}

// Err returns the configured iteration error
func (c *Cursor) Err() error {
	return c.Failed
}

// Close marks the cursor closed
func (c *Cursor) Close(ctx context.Context) error {
	c.Closed = true
	return nil
}

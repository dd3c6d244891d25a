// Package box implements the typed value container used for every datum
// that crosses a filter port boundary. A Box pairs an opaque value with the
// runtime tag it was stored under; readers must request the exact tag back.
//
// A Box is either owned (the box is responsible for destroying the value on
// release) or borrowed (the box holds a non-owning handle and release only
// clears the handle).
package box

import (
	"fmt"
	"reflect"
)

// ErrTypeMismatch is returned when a reader requests a value under a
// different tag than the one it was stored with.
var ErrTypeMismatch = fmt.Errorf("type mismatch")

// Box is a type-tagged value cell. The zero value is an empty box.
type Box struct {
	value any
	tag   reflect.Type
	owned bool
	drop  func()
}

// Owned creates a box that owns v. The optional drop hook runs exactly once
// when the box is released.
func Owned[T any](v T, drop func()) *Box {
	return &Box{
		value: v,
		tag:   reflect.TypeFor[T](),
		owned: true,
		drop:  drop,
	}
}

// Borrowed creates a box holding a non-owning handle to v. Releasing the box
// drops the handle only; the value's lifetime is maintained elsewhere.
func Borrowed[T any](v T) *Box {
	return &Box{
		value: v,
		tag:   reflect.TypeFor[T](),
		owned: false,
	}
}

// Is reports whether the box currently holds a value stored under tag T.
func Is[T any](b *Box) bool {
	if b == nil || b.tag == nil {
		return false
	}
	return b.tag == reflect.TypeFor[T]()
}

// Get returns the stored value. The requested tag must match the stored tag
// exactly; there are no implicit conversions at a port boundary.
func Get[T any](b *Box) (T, error) {
	var zero T
	if b == nil || b.tag == nil {
		return zero, fmt.Errorf("%w: box is empty, want %s", ErrTypeMismatch, reflect.TypeFor[T]())
	}
	want := reflect.TypeFor[T]()
	if b.tag != want {
		return zero, fmt.Errorf("%w: box holds %s, want %s", ErrTypeMismatch, b.tag, want)
	}
	return b.value.(T), nil
}

// Borrow returns a new non-owning box onto the same value and tag.
// Pass-through filters use this to forward an input without taking over
// its lifetime.
func (b *Box) Borrow() *Box {
	if b == nil || b.tag == nil {
		return &Box{}
	}
	return &Box{value: b.value, tag: b.tag}
}

// Empty reports whether the box holds no value.
func (b *Box) Empty() bool {
	return b == nil || b.tag == nil
}

// Owned reports whether the box owns its value.
func (b *Box) Owned() bool {
	return b != nil && b.owned
}

// Tag returns the stored tag, or nil for an empty box.
func (b *Box) Tag() reflect.Type {
	if b == nil {
		return nil
	}
	return b.tag
}

// Release destroys an owned value via its drop hook and clears the box.
// Releasing an empty box is a no-op.
func (b *Box) Release() {
	if b == nil || b.tag == nil {
		return
	}
	if b.owned && b.drop != nil {
		b.drop()
	}
	b.value = nil
	b.tag = nil
	b.owned = false
	b.drop = nil
}

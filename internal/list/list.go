// Package list implements the intrusive doubly linked list the record
// engine uses for both a record id's version chain and the global
// eviction list. The list does not allocate or own its items: callers
// embed a Node[T] per list identity inside the item type and hand the
// list an accessor that returns that particular Node.
//
// A single item can be a member of more than one List at once, as long
// as each List uses a distinct Node field — that's how a *Record lives
// simultaneously in its id's version chain and in the global eviction
// list without the two memberships interfering with each other.
package list

import "errors"

// Sentinel errors returned by list operations. They name misuse of the
// list by its caller (the record engine), not ordinary runtime
// conditions, and are never expected to be handled beyond a log line or
// a failed request.
var (
	ErrAlreadyLinked        = errors.New("list: item is already linked")
	ErrNotLinked             = errors.New("list: item is not linked")
	ErrEmpty                 = errors.New("list: list is empty")
	ErrConcurrentModification = errors.New("list: concurrent modification")
)

// Node is the link-field pair for one list membership. Zero value is an
// unlinked node. Embed one Node[T] per list a T can belong to.
type Node[T any] struct {
	next, prev T
	linked     bool
}

// List is a generic intrusive doubly linked list over items of type T.
// T is normally a pointer type so that the zero value can stand in for
// "no neighbor" / "no item".
type List[T comparable] struct {
	access     func(T) *Node[T]
	head, tail T
	length     int
	generation uint64
}

// New returns an empty list whose items use access to reach their link
// fields for this list's identity.
func New[T comparable](access func(T) *Node[T]) *List[T] {
	return &List[T]{access: access}
}

// Len returns the number of items currently linked.
func (l *List[T]) Len() int { return l.length }

// IsEmpty reports whether the list has no items.
func (l *List[T]) IsEmpty() bool { return l.length == 0 }

// AppendLeft inserts item as the new head of the list.
func (l *List[T]) AppendLeft(item T) error {
	n := l.access(item)
	if n.linked {
		return ErrAlreadyLinked
	}
	n.linked = true
	var zero T
	n.prev = zero
	n.next = l.head
	if l.head != zero {
		l.access(l.head).prev = item
	} else {
		l.tail = item
	}
	l.head = item
	l.length++
	l.generation++
	return nil
}

// AppendRight inserts item as the new tail of the list.
func (l *List[T]) AppendRight(item T) error {
	n := l.access(item)
	if n.linked {
		return ErrAlreadyLinked
	}
	n.linked = true
	var zero T
	n.next = zero
	n.prev = l.tail
	if l.tail != zero {
		l.access(l.tail).next = item
	} else {
		l.head = item
	}
	l.tail = item
	l.length++
	l.generation++
	return nil
}

// Remove detaches item from the list. Returns ErrNotLinked if item is
// not currently a member.
func (l *List[T]) Remove(item T) error {
	n := l.access(item)
	if !n.linked {
		return ErrNotLinked
	}
	var zero T
	if n.prev != zero {
		l.access(n.prev).next = n.next
	} else {
		l.head = n.next
	}
	if n.next != zero {
		l.access(n.next).prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.next, n.prev, n.linked = zero, zero, false
	l.length--
	l.generation++
	return nil
}

// Leftmost returns the head of the list, or ErrEmpty if the list has no
// items.
func (l *List[T]) Leftmost() (T, error) {
	var zero T
	if l.head == zero {
		return zero, ErrEmpty
	}
	return l.head, nil
}

// LeftmostOr returns the head of the list, or def if the list is empty.
func (l *List[T]) LeftmostOr(def T) T {
	if item, err := l.Leftmost(); err == nil {
		return item
	}
	return def
}

// Rightmost returns the tail of the list, or ErrEmpty if the list has no
// items.
func (l *List[T]) Rightmost() (T, error) {
	var zero T
	if l.tail == zero {
		return zero, ErrEmpty
	}
	return l.tail, nil
}

// RightmostOr returns the tail of the list, or def if the list is empty.
func (l *List[T]) RightmostOr(def T) T {
	if item, err := l.Rightmost(); err == nil {
		return item
	}
	return def
}

// Cursor walks a List in one direction, capturing the list's generation
// at creation time. Modeled on database/sql.Rows: call Next() in a
// loop, read Item() while it returns true, then check Err() once the
// loop ends.
type Cursor[T comparable] struct {
	list       *List[T]
	cur        T
	generation uint64
	started    bool
	forward    bool
	err        error
}

// Forward returns a cursor that walks the list head to tail.
func (l *List[T]) Forward() *Cursor[T] {
	return &Cursor[T]{list: l, generation: l.generation, forward: true}
}

// Backward returns a cursor that walks the list tail to head.
func (l *List[T]) Backward() *Cursor[T] {
	return &Cursor[T]{list: l, generation: l.generation, forward: false}
}

// Next advances the cursor and reports whether an item is available.
// It fails with ErrConcurrentModification (see Err) the first time it
// is called after the list has been mutated since the cursor was
// created.
func (c *Cursor[T]) Next() bool {
	if c.err != nil {
		return false
	}
	if c.generation != c.list.generation {
		c.err = ErrConcurrentModification
		return false
	}
	var zero T
	var next T
	if !c.started {
		c.started = true
		if c.forward {
			next = c.list.head
		} else {
			next = c.list.tail
		}
	} else {
		n := c.list.access(c.cur)
		if c.forward {
			next = n.next
		} else {
			next = n.prev
		}
	}
	if next == zero {
		return false
	}
	c.cur = next
	return true
}

// Item returns the item at the cursor's current position. Only valid
// after a call to Next() returned true.
func (c *Cursor[T]) Item() T { return c.cur }

// Err returns ErrConcurrentModification if the list was mutated during
// the walk, nil otherwise.
func (c *Cursor[T]) Err() error { return c.err }

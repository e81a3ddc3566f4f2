// Package list implements the doubly-linked list backing the pager's
// free/pinned/unpinned page bookkeeping.
package list

// List is a doubly-linked list of arbitrary values.
type List struct {
	head *Link
	tail *Link
}

// A Link is one element of a List. A Link knows which list it belongs to
// so that callers holding only the link can unsplice it.
type Link struct {
	list  *List
	prev  *Link
	next  *Link
	value interface{}
}

// NewList returns an empty list.
func NewList() *List {
	return &List{}
}

// PeekHead returns the first link in the list, or nil if the list is empty.
func (list *List) PeekHead() *Link {
	return list.head
}

// PeekTail returns the last link in the list, or nil if the list is empty.
func (list *List) PeekTail() *Link {
	return list.tail
}

// PushHead prepends a value to the list, returning its link.
func (list *List) PushHead(value interface{}) *Link {
	link := &Link{list: list, value: value, next: list.head}
	if list.head != nil {
		list.head.prev = link
	} else {
		list.tail = link
	}
	list.head = link
	return link
}

// PushTail appends a value to the list, returning its link.
func (list *List) PushTail(value interface{}) *Link {
	link := &Link{list: list, value: value, prev: list.tail}
	if list.tail != nil {
		list.tail.next = link
	} else {
		list.head = link
	}
	list.tail = link
	return link
}

// Find returns the first link for which f returns true, else nil.
func (list *List) Find(f func(*Link) bool) *Link {
	for link := list.head; link != nil; link = link.next {
		if f(link) {
			return link
		}
	}
	return nil
}

// Map applies f to every link in the list, in order.
func (list *List) Map(f func(*Link)) {
	for link := list.head; link != nil; {
		next := link.next
		f(link)
		link = next
	}
}

// GetList returns the list this link currently belongs to, or nil if the
// link has been popped.
func (link *Link) GetList() *List {
	return link.list
}

// GetValue returns the value stored in this link.
func (link *Link) GetValue() interface{} {
	return link.value
}

// GetPrev returns the previous link, or nil at the head.
func (link *Link) GetPrev() *Link {
	return link.prev
}

// GetNext returns the next link, or nil at the tail.
func (link *Link) GetNext() *Link {
	return link.next
}

// PopSelf unsplices this link from its list. Popping an already-popped
// link is a no-op.
func (link *Link) PopSelf() {
	if link.list == nil {
		return
	}
	if link.prev != nil {
		link.prev.next = link.next
	} else {
		link.list.head = link.next
	}
	if link.next != nil {
		link.next.prev = link.prev
	} else {
		link.list.tail = link.prev
	}
	link.prev = nil
	link.next = nil
	link.list = nil
}

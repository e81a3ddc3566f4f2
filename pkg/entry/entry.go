package entry

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Size is the marshalled width of an Entry: two fixed varint fields.
const Size int64 = binary.MaxVarintLen64 * 2

// Entry is a (key, value) pair stored in a hash bucket slot. In the
// reference use the value is a record id.
type Entry struct {
	Key   int64
	Value int64
}

// New constructs a new Entry with the specified key and value.
func New(key int64, value int64) Entry {
	return Entry{Key: key, Value: value}
}

// Marshal serializes the entry into a Size-byte array.
func (entry Entry) Marshal() []byte {
	data := make([]byte, Size)
	binary.PutVarint(data[:Size/2], entry.Key)
	binary.PutVarint(data[Size/2:], entry.Value)
	return data
}

// UnmarshalEntry deserializes a Size-byte array into an entry.
func UnmarshalEntry(data []byte) Entry {
	k, _ := binary.Varint(data[:len(data)/2])
	v, _ := binary.Varint(data[len(data)/2:])
	return Entry{Key: k, Value: v}
}

// Print writes the entry to the specified writer as "(<key>, <value>), ".
func (entry Entry) Print(w io.Writer) {
	fmt.Fprintf(w, "(%d, %d), ", entry.Key, entry.Value)
}

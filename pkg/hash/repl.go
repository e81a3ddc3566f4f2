package hash

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"crocdb/pkg/repl"
)

// Error for malformed REPL input.
var errInvalidArgs = errors.New("invalid command arguments")

// IndexRepl builds a REPL exposing the index's operations:
// insert, find, remove, select, depth, print, and verify.
func IndexRepl(index *HashIndex) *repl.REPL {
	r := repl.NewRepl()
	r.AddCommand("insert", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleInsert(index, payload)
	}, "Insert a (key, value) pair. usage: insert <key> <value>")
	r.AddCommand("find", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleFind(index, payload)
	}, "Find all values stored under a key. usage: find <key>")
	r.AddCommand("remove", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleRemove(index, payload)
	}, "Remove a (key, value) pair. usage: remove <key> <value>")
	r.AddCommand("select", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleSelect(index, payload)
	}, "Select all entries. usage: select")
	r.AddCommand("depth", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleDepth(index, payload)
	}, "Print the directory's global depth. usage: depth")
	r.AddCommand("print", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handlePrint(index, payload)
	}, "Print the directory and buckets. usage: print [<pagenum>]")
	r.AddCommand("verify", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleVerify(index, payload)
	}, "Check the extendible hashing invariants. usage: verify")
	return r
}

func parseKeyValue(payload string) (key int64, value int64, err error) {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return 0, 0, errInvalidArgs
	}
	if key, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return 0, 0, errInvalidArgs
	}
	if value, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return 0, 0, errInvalidArgs
	}
	return key, value, nil
}

func handleInsert(index *HashIndex, payload string) (string, error) {
	key, value, err := parseKeyValue(payload)
	if err != nil {
		return "", err
	}
	inserted, err := index.Insert(key, value)
	if err != nil {
		return "", err
	}
	if !inserted {
		return fmt.Sprintf("(%d, %d) not inserted", key, value), nil
	}
	return "", nil
}

func handleFind(index *HashIndex, payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", errInvalidArgs
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", errInvalidArgs
	}
	values, err := index.GetValue(key)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return fmt.Sprintf("no values for key %d", key), nil
	}
	var sb strings.Builder
	for _, v := range values {
		fmt.Fprintf(&sb, "(%d, %d) ", key, v)
	}
	return sb.String(), nil
}

func handleRemove(index *HashIndex, payload string) (string, error) {
	key, value, err := parseKeyValue(payload)
	if err != nil {
		return "", err
	}
	removed, err := index.Remove(key, value)
	if err != nil {
		return "", err
	}
	if !removed {
		return fmt.Sprintf("(%d, %d) not found", key, value), nil
	}
	return "", nil
}

func handleSelect(index *HashIndex, payload string) (string, error) {
	if len(strings.Fields(payload)) != 1 {
		return "", errInvalidArgs
	}
	entries, err := index.Select()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, e := range entries {
		e.Print(&sb)
	}
	return sb.String(), nil
}

func handleDepth(index *HashIndex, payload string) (string, error) {
	if len(strings.Fields(payload)) != 1 {
		return "", errInvalidArgs
	}
	depth, err := index.GlobalDepth()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("global depth: %d", depth), nil
}

func handlePrint(index *HashIndex, payload string) (string, error) {
	fields := strings.Fields(payload)
	var sb strings.Builder
	switch len(fields) {
	case 1:
		index.Print(&sb)
	case 2:
		pagenum, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return "", errInvalidArgs
		}
		index.PrintPN(pagenum, &sb)
	default:
		return "", errInvalidArgs
	}
	return sb.String(), nil
}

func handleVerify(index *HashIndex, payload string) (string, error) {
	if len(strings.Fields(payload)) != 1 {
		return "", errInvalidArgs
	}
	if err := index.VerifyIntegrity(); err != nil {
		return "", err
	}
	return "ok", nil
}

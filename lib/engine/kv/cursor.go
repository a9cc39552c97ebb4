package kv

import (
	"fmt"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// cursor implements engine.Cursor. It keeps no backend iterator open:
// every Next is a Seek to the successor of the previous entry, so the
// cursor stays valid while the transaction modifies the store.
type cursor struct {
	store   *objectStore
	bucket  Bucket // data or index bucket
	data    Bucket
	isIndex bool
	rng     engine.EncodedRange
	pos     []byte

	key   any
	pk    any
	value engine.Record
	err   error
	done  bool
}

func (c *cursor) Next() bool {
	if c.done {
		return false
	}
	if err := c.store.usable(false); err != nil {
		return c.fail(err)
	}

	for {
		k, v, err := c.bucket.Seek(c.pos)
		if err != nil {
			return c.fail(err)
		}
		if k == nil {
			c.done = true
			return false
		}
		c.pos = successor(k)

		// the user-visible key of this entry
		uk := k
		if c.isIndex {
			if len(v) > len(k) {
				return c.fail(fmt.Errorf("corrupt index entry in store %q", c.store.info.Name))
			}
			uk = k[:len(k)-len(v)]
		}
		if !c.rng.AboveLower(uk) {
			continue
		}
		if c.rng.BeyondUpper(uk) {
			c.done = true
			return false
		}

		if c.key, err = engine.DecodeKey(uk); err != nil {
			return c.fail(err)
		}
		raw := v
		if c.isIndex {
			if c.pk, err = engine.DecodeKey(v); err != nil {
				return c.fail(err)
			}
			if raw, err = c.data.Get(v); err != nil {
				return c.fail(err)
			}
			if raw == nil {
				return c.fail(fmt.Errorf("index of store %q points to a missing record", c.store.info.Name))
			}
		} else {
			c.pk = c.key
		}
		if c.value, err = engine.DecodeRecord(raw); err != nil {
			return c.fail(err)
		}
		return true
	}
}

func (c *cursor) fail(err error) bool {
	c.err = err
	c.done = true
	return false
}

func (c *cursor) Key() any {
	return c.key
}

func (c *cursor) PrimaryKey() any {
	return c.pk
}

func (c *cursor) Value() engine.Record {
	return c.value
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() {
	c.done = true
}

package bs

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// localStorage keeps its entries in one bucket of a bbolt file
type localStorage struct {
	db     *bbolt.DB
	bucket []byte
}

func newLocal(path, namespace string) (*localStorage, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local storage %q: %w", path, err)
	}
	s := &localStorage{db: db, bucket: []byte(namespace)}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create namespace %q: %w", namespace, err)
	}
	plog.Debugf("opened local storage %q (namespace %q)", path, namespace)
	return s, nil
}

func (s *localStorage) view(fn func(b *bbolt.Bucket) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket(s.bucket))
	})
}

func (s *localStorage) update(fn func(b *bbolt.Bucket) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket(s.bucket))
	})
}

func (s *localStorage) Get(key string) (value string, ok bool, err error) {
	err = s.view(func(b *bbolt.Bucket) error {
		if v := b.Get([]byte(key)); v != nil {
			value, ok = string(v), true
		}
		return nil
	})
	return value, ok, err
}

func (s *localStorage) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.update(func(b *bbolt.Bucket) error {
		return b.Put([]byte(key), []byte(value))
	})
}

func (s *localStorage) Remove(key string) error {
	return s.update(func(b *bbolt.Bucket) error {
		return b.Delete([]byte(key))
	})
}

func (s *localStorage) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
}

func (s *localStorage) Key(i int) (key string, ok bool, err error) {
	if i < 0 {
		return "", false, nil
	}
	err = s.view(func(b *bbolt.Bucket) error {
		c := b.Cursor()
		n := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if n == i {
				key, ok = string(k), true
				return nil
			}
			n++
		}
		return nil
	})
	return key, ok, err
}

func (s *localStorage) Len() (n int, err error) {
	err = s.view(func(b *bbolt.Bucket) error {
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func (s *localStorage) Close() error {
	return s.db.Close()
}

package bs

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// sessions holds the session storages of the process by namespace
var sessions = xsync.NewMapOf[string, *sessionStorage]()

// sessionStorage keeps its entries in process memory
type sessionStorage struct {
	namespace string
	entries   *xsync.MapOf[string, string]
}

func newSession(namespace string) *sessionStorage {
	s, _ := sessions.LoadOrCompute(namespace, func() *sessionStorage {
		plog.Debugf("created session storage %q", namespace)
		return &sessionStorage{
			namespace: namespace,
			entries:   xsync.NewMapOf[string, string](),
		}
	})
	return s
}

func (s *sessionStorage) Get(key string) (string, bool, error) {
	v, ok := s.entries.Load(key)
	return v, ok, nil
}

func (s *sessionStorage) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.entries.Store(key, value)
	return nil
}

func (s *sessionStorage) Remove(key string) error {
	s.entries.Delete(key)
	return nil
}

func (s *sessionStorage) Clear() error {
	s.entries.Clear()
	return nil
}

func (s *sessionStorage) Key(i int) (string, bool, error) {
	if i < 0 {
		return "", false, nil
	}
	keys := make([]string, 0, s.entries.Size())
	s.entries.Range(func(k, _ string) bool {
		keys = append(keys, k)
		return true
	})
	if i >= len(keys) {
		return "", false, nil
	}
	sort.Strings(keys)
	return keys[i], true, nil
}

func (s *sessionStorage) Len() (int, error) {
	return s.entries.Size(), nil
}

func (s *sessionStorage) Close() error {
	return nil
}

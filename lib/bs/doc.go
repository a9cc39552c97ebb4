/*
Package bs provides flat string key-value storages in the style of a
browser's localStorage and sessionStorage.

Two kinds exist:
  - KindSession keeps entries in process memory. Storages with the same
    namespace share their entries until the process exits.
  - KindLocal keeps entries in a bbolt file, one bucket per namespace.

Keys are enumerated in ascending byte order via Key(i).

Example:

	s, err := bs.New(bs.Config{Kind: bs.KindLocal, Path: "prefs.db"})
	if err != nil {
		return err
	}
	defer s.Close()

	_ = bs.SetJSON(s, "theme", map[string]string{"color": "dark"})
*/
package bs

package util

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"1", float64(1)},
		{`"1"`, "1"},
		{"pen", "pen"},
		{`[1,"a"]`, []any{float64(1), "a"}},
		{"true", "true"},
		{`{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseKey(tt.in), "ParseKey(%s)", tt.in)
	}
}

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord(`{"name":"pen","tags":["a"]}`)
	require.NoError(t, err)
	assert.Equal(t, engine.Record{"name": "pen", "tags": []any{"a"}}, rec)

	for _, bad := range []string{"null", "[1]", "{", "1"} {
		_, err := ParseRecord(bad)
		assert.Error(t, err, "ParseRecord(%s)", bad)
	}
}

const yamlDescriptor = `
name: shop
version: 2
stores:
  products:
    keyPath: id
    indexes:
      - name: by_name
        keyPath: name
      - name: by_tag
        keyPath: tags
        multiEntry: true
  orders:
    keyPath: nr
    autoIncrement: false
    indexes:
      - name: by_customer_date
        keyPath: [customer, date]
`

const jsonDescriptor = `{
  "name": "shop",
  "version": 2,
  "stores": {
    "products": {"keyPath": "id", "indexes": [
      {"name": "by_name", "keyPath": "name"},
      {"name": "by_tag", "keyPath": "tags", "multiEntry": true}
    ]},
    "orders": {"keyPath": "nr", "autoIncrement": false, "indexes": [
      {"name": "by_customer_date", "keyPath": ["customer", "date"]}
    ]}
  }
}`

func TestLoadDescriptor(t *testing.T) {
	dir := t.TempDir()
	for file, content := range map[string]string{"shop.yaml": yamlDescriptor, "shop.json": jsonDescriptor} {
		t.Run(file, func(t *testing.T) {
			path := filepath.Join(dir, file)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			desc, err := LoadDescriptor(path)
			require.NoError(t, err)
			require.NoError(t, desc.Validate())

			assert.Equal(t, "shop", desc.Name)
			assert.Equal(t, uint64(2), desc.Version)
			require.Len(t, desc.Stores, 2)

			products := desc.Stores["products"]
			assert.Nil(t, products.AutoIncrement)
			require.Len(t, products.Indexes, 2)
			assert.Equal(t, engine.Path("tags"), products.Indexes[1].KeyPath)
			assert.True(t, products.Indexes[1].MultiEntry)

			orders := desc.Stores["orders"]
			require.NotNil(t, orders.AutoIncrement)
			assert.False(t, *orders.AutoIncrement)
			assert.Equal(t, engine.Path("customer", "date"), orders.Indexes[0].KeyPath)
		})
	}

	_, err := LoadDescriptor(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPrint(t *testing.T) {
	defer viper.Reset()
	v := map[string]any{"id": 1, "name": "pen"}

	viper.Set("output", "json")
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, v))
	assert.JSONEq(t, `{"id":1,"name":"pen"}`, buf.String())

	viper.Set("output", "yaml")
	buf.Reset()
	require.NoError(t, Print(&buf, v))
	assert.YAMLEq(t, "id: 1\nname: pen\n", buf.String())

	viper.Set("output", "xml")
	assert.Error(t, Print(&buf, v))
}

func TestGetEngine(t *testing.T) {
	defer viper.Reset()
	dir := t.TempDir()

	for _, backend := range []string{"memory", "bolt", "leveldb", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			viper.Set("backend", backend)
			viper.Set("path", filepath.Join(dir, backend))
			eng, err := GetEngine()
			require.NoError(t, err)
			require.NoError(t, eng.Close())
		})
	}

	viper.Set("backend", "floppy")
	_, err := GetEngine()
	assert.Error(t, err)
}

package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestMemDBPutGet(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("missing key: err = %v, want ErrKeyNotFound", err)
	}

	if err := db.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("got %q, want v1", got)
	}

	if err := db.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = db.Get([]byte("k"))
	if !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("got %q, want v2", got)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("original")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("original")) {
		t.Fatalf("stored value aliased the caller's slice: %q", got)
	}

	got[0] = 'Y'
	again, _ := db.Get([]byte("k"))
	if !bytes.Equal(again, []byte("original")) {
		t.Fatalf("returned value aliased the stored slice: %q", again)
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("missing key: err = %v, want ErrKeyNotFound", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Fatalf("got %q, want v", got)
	}
}

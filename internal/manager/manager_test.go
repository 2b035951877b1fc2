package manager

import (
	"context"
	"errors"
	"testing"
)

func newTestManager(ids map[string]string) *Manager {
	m := &Manager{
		byID:    make(map[string]*entry),
		cancels: make(map[string]context.CancelFunc),
		order:   make(map[string][]string),
	}
	for id, name := range ids {
		m.byID[id] = &entry{baseName: name}
		m.order[name] = append(m.order[name], id)
	}
	return m
}

func TestResolveExactID(t *testing.T) {
	m := newTestManager(map[string]string{"abcd1234": "movie"})
	id, err := m.resolveLocked("abcd1234")
	if err != nil || id != "abcd1234" {
		t.Fatalf("got %q, %v", id, err)
	}
}

func TestResolveUniqueName(t *testing.T) {
	m := newTestManager(map[string]string{"abcd1234efgh": "movie"})
	id, err := m.resolveLocked("movie")
	if err != nil || id != "abcd1234efgh" {
		t.Fatalf("got %q, %v", id, err)
	}
}

func TestResolveAmbiguousName(t *testing.T) {
	m := newTestManager(map[string]string{
		"abcd1234efgh": "movie",
		"99990000ffff": "movie",
	})
	_, err := m.resolveLocked("movie")
	var ambErr *AmbiguousError
	if !errors.As(err, &ambErr) {
		t.Fatalf("got %v, want *AmbiguousError", err)
	}
}

func TestResolveDisambiguatedBySuffix(t *testing.T) {
	m := newTestManager(map[string]string{
		"abcd1234efgh": "movie",
		"99990000ffff": "movie",
	})
	id, err := m.resolveLocked("movie__abcd1234")
	if err != nil || id != "abcd1234efgh" {
		t.Fatalf("got %q, %v", id, err)
	}
}

func TestResolveNotFound(t *testing.T) {
	m := newTestManager(map[string]string{"abcd1234efgh": "movie"})
	_, err := m.resolveLocked("nope")
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("got %v, want *NotFoundError", err)
	}
}

func TestResolveEmptyTokenRequiresTorrent(t *testing.T) {
	m := newTestManager(nil)
	_, err := m.resolveLocked("")
	if !errors.Is(err, ErrTorrentRequired) {
		t.Fatalf("got %v, want ErrTorrentRequired", err)
	}
}

func TestDisplayNameFirstRegistrantKeepsPlainName(t *testing.T) {
	m := &Manager{
		byID:  make(map[string]*entry),
		order: make(map[string][]string),
	}
	m.byID["first"] = &entry{baseName: "movie"}
	m.order["movie"] = append(m.order["movie"], "first")
	m.byID["second"] = &entry{baseName: "movie"}
	m.order["movie"] = append(m.order["movie"], "second")

	if got := m.displayNameLocked("first"); got != "movie" {
		t.Fatalf("first registrant got %q, want %q", got, "movie")
	}
	want := "movie__" + shortID("second")
	if got := m.displayNameLocked("second"); got != want {
		t.Fatalf("second registrant got %q, want %q", got, want)
	}
}

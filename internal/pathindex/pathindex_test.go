package pathindex

import "testing"

func buildSample() *Index {
	idx := New()
	idx.Add(FileEntry{Path: "movie/video.mkv", Size: 1000, Offset: 0})
	idx.Add(FileEntry{Path: "movie/subs/eng.srt", Size: 10, Offset: 1000})
	idx.Add(FileEntry{Path: "readme.txt", Size: 5, Offset: 1010})
	return idx
}

func TestLookupFile(t *testing.T) {
	idx := buildSample()
	e, err := idx.Lookup("movie/video.mkv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Size != 1000 || e.Offset != 0 {
		t.Fatalf("got %+v", e)
	}
}

func TestLookupDirectoryIsDirectory(t *testing.T) {
	idx := buildSample()
	if _, err := idx.Lookup("movie"); err != ErrIsDirectory {
		t.Fatalf("want ErrIsDirectory, got %v", err)
	}
}

func TestLookupMissing(t *testing.T) {
	idx := buildSample()
	if _, err := idx.Lookup("nope.txt"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListRoot(t *testing.T) {
	idx := buildSample()
	children, err := idx.List("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("want 2 children, got %d: %+v", len(children), children)
	}
	if children[0].Name != "movie" || children[0].Type != TypeDir {
		t.Fatalf("want movie dir first, got %+v", children[0])
	}
	if children[1].Name != "readme.txt" || children[1].Type != TypeFile {
		t.Fatalf("want readme.txt file second, got %+v", children[1])
	}
}

func TestListOnFileIsNotDirectory(t *testing.T) {
	idx := buildSample()
	if _, err := idx.List("readme.txt"); err != ErrNotDirectory {
		t.Fatalf("want ErrNotDirectory, got %v", err)
	}
}

func TestStatDirectoryAggregatesSize(t *testing.T) {
	idx := buildSample()
	st, err := idx.Stat("movie")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Type != TypeDir || st.Size != 1010 {
		t.Fatalf("got %+v", st)
	}
}

func TestNormalizeRejectsUnsafePaths(t *testing.T) {
	idx := buildSample()
	cases := []string{"/abs/path", "../escape", "movie/../readme.txt", "./readme.txt"}
	for _, c := range cases {
		if _, err := idx.Lookup(c); err != ErrPathUnsafe {
			t.Fatalf("path %q: want ErrPathUnsafe, got %v", c, err)
		}
	}
}

func TestNormalizeCollapsesDoubleSlash(t *testing.T) {
	idx := buildSample()
	e, err := idx.Lookup("movie//video.mkv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Size != 1000 {
		t.Fatalf("got %+v", e)
	}
}

func TestPiecesFor(t *testing.T) {
	e := FileEntry{Path: "f", Size: 300, Offset: 150}
	p0, p1, off := PiecesFor(e, 10, 50, 100)
	// absolute range [160, 210) with piece length 100 -> pieces [1,3), offset 60 in piece 1
	if p0 != 1 || p1 != 3 || off != 60 {
		t.Fatalf("got p0=%d p1=%d off=%d", p0, p1, off)
	}
}

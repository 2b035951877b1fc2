package engine

// FileProgress reports how much of one file is locally available.
type FileProgress struct {
	Path      string
	Size      int64
	HaveBytes int64
}

// Status is the response shape for the `status`.
type Status struct {
	ID             string
	Name           string
	InfoHash       string
	State          State
	Error          string
	TotalLength    int64
	BytesCompleted int64
	PiecesComplete int
	PiecesTotal    int
	Files          []FileProgress
	Peers          PeerStats
	// BytesReadData/BytesWrittenData are cumulative counters, not
	// instantaneous rates: anacrolix/torrent's Stats() exposes totals, not
	// a sampled rate, so these are reported as the same totals directly.
	BytesReadData    int64
	BytesWrittenData int64
}

// Status reports this torrent's current progress and health, in the
// shape the `status` command reports.
func (e *Engine) Status() Status {
	e.mu.Lock()
	state := e.state
	errMsg := e.errMsg
	e.mu.Unlock()

	info := e.t.Info()
	st := e.t.Stats()

	s := Status{
		ID:             e.ID,
		Name:           e.Name,
		InfoHash:       e.t.InfoHash().HexString(),
		State:          state,
		Error:          errMsg,
		BytesCompleted: e.t.BytesCompleted(),
		PiecesComplete: st.PiecesComplete,
		Peers: PeerStats{
			ActivePeers:      st.ActivePeers,
			ConnectedSeeders: st.ConnectedSeeders,
			HalfOpenPeers:    st.HalfOpenPeers,
		},
		BytesReadData:    st.BytesReadData.Int64(),
		BytesWrittenData: st.BytesWrittenData.Int64(),
	}

	if info == nil {
		return s
	}
	s.TotalLength = info.TotalLength()
	s.PiecesTotal = e.t.NumPieces()

	for _, f := range e.t.Files() {
		have := int64(0)
		p0, p1 := pieceRangeFor(f.Offset(), f.Length(), info.PieceLength)
		for i := p0; i < p1; i++ {
			if e.t.Piece(i).State().Complete {
				have += pieceOverlap(i, f.Offset(), f.Length(), info.PieceLength)
			}
		}
		if have > f.Length() {
			have = f.Length()
		}
		s.Files = append(s.Files, FileProgress{Path: f.Path(), Size: f.Length(), HaveBytes: have})
	}
	return s
}

// pieceRangeFor returns the inclusive-exclusive piece range [p0, p1) a
// byte range [fileOffset, fileOffset+fileLength) spans.
func pieceRangeFor(fileOffset, fileLength, pieceLength int64) (p0, p1 int) {
	if pieceLength <= 0 {
		return 0, 0
	}
	p0 = int(fileOffset / pieceLength)
	p1 = int((fileOffset + fileLength + pieceLength - 1) / pieceLength)
	return p0, p1
}

// pieceOverlap returns how many bytes of piece i fall within
// [fileOffset, fileOffset+fileLength), used to approximate have-bytes
// per file from whole-piece completion.
func pieceOverlap(i int, fileOffset, fileLength, pieceLength int64) int64 {
	pieceStart := int64(i) * pieceLength
	pieceEnd := pieceStart + pieceLength
	fEnd := fileOffset + fileLength

	start := pieceStart
	if fileOffset > start {
		start = fileOffset
	}
	end := pieceEnd
	if fEnd < end {
		end = fEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

// Package pack decodes git's pack container format: the binary stream a
// smart-HTTP upload-pack response embeds after its NAK line. A cloned
// pack arrives as one HTTP response body rather than a file with a
// sibling index (see package transport), so this decoder reads it as a
// single buffer rather than assuming seekable, random-access storage.
// Delta base resolution is a lazy, memoized recursion over the records
// collected in one forward pass.
package pack

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/object"
	"github.com/mwillock/gogit/varint"
)

// ErrPackCorrupt is returned for a bad magic, unsupported version,
// trailing-digest mismatch, an out-of-range record header, or an
// unresolved delta base remaining at the end of decoding.
var ErrPackCorrupt = xerrors.New("pack is corrupt")

// ErrBadDelta is returned for a zero-length insert, a copy instruction
// reaching outside the base, or a target whose reconstructed length
// disagrees with its declared length.
var ErrBadDelta = xerrors.New("invalid delta")

const (
	packMagic         = "PACK"
	packHeaderSize    = 12 // magic(4) + version(4) + count(4)
	packTrailerSize   = githash.OidSize
	minSupportedVers  = 2
	maxSupportedVers  = 3
	copyDefaultLength = 0x10000
)

// BaseLookup resolves a delta's reference base by identity when it
// isn't found earlier in the same pack, e.g. against the local object
// store during a clone where the base was already present before the
// fetch began.
type BaseLookup func(oid githash.Oid) (*object.Object, bool)

// Object pairs a resolved object with the identity it was registered
// under (the identity recomputed from its canonical bytes, per the pack
// decoder's resolution order).
type Object struct {
	ID  githash.Oid
	Obj *object.Object
}

// rawRecord is one pack record after header parsing and zlib inflation,
// before delta resolution.
type rawRecord struct {
	offset  int // absolute offset of the record's header in the pack
	typ     object.Type
	size    uint64 // declared uncompressed length of content
	content []byte // direct object payload, or the delta instruction stream

	baseOid    githash.Oid // set when typ == TypeRefDelta
	baseOffset int         // absolute offset of the base record, set when typ == TypeOfsDelta
}

// Decode parses a full pack buffer (header, records, trailer) and
// returns every object it contains, fully resolved to canonical bytes
// and keyed by identity. lookup supplies bases for ref-delta records
// whose base isn't present earlier in this pack (may be nil if none is
// expected).
func Decode(buf []byte, lookup BaseLookup) (map[githash.Oid]*object.Object, error) {
	if len(buf) < packHeaderSize+packTrailerSize {
		return nil, xerrors.Errorf("pack too short (%d bytes): %w", len(buf), ErrPackCorrupt)
	}
	if string(buf[:4]) != packMagic {
		return nil, xerrors.Errorf("bad magic %q: %w", buf[:4], ErrPackCorrupt)
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version < minSupportedVers || version > maxSupportedVers {
		return nil, xerrors.Errorf("unsupported pack version %d: %w", version, ErrPackCorrupt)
	}
	count := binary.BigEndian.Uint32(buf[8:12])

	trailerStart := len(buf) - packTrailerSize
	body := buf[:trailerStart]
	wantDigest := buf[trailerStart:]
	gotDigest := githash.Sum(body)
	if !bytes.Equal(gotDigest.Bytes(), wantDigest) {
		return nil, xerrors.Errorf("trailer digest mismatch: %w", ErrPackCorrupt)
	}

	records := make([]rawRecord, 0, count)
	offsetIndex := make(map[int]int, count)
	pos := packHeaderSize
	for i := uint32(0); i < count; i++ {
		rec, consumed, err := readRecord(buf, pos)
		if err != nil {
			return nil, err
		}
		offsetIndex[pos] = len(records)
		records = append(records, rec)
		pos += consumed
	}
	if pos != trailerStart {
		return nil, xerrors.Errorf("%d trailing bytes before trailer: %w", trailerStart-pos, ErrPackCorrupt)
	}

	resolver := &resolver{
		records:     records,
		offsetIndex: offsetIndex,
		resolved:    make(map[int]Object, len(records)),
		resolving:   make(map[int]bool, len(records)),
		lookup:      lookup,
	}

	out := make(map[githash.Oid]*object.Object, len(records))
	for i := range records {
		resolvedObj, err := resolver.resolve(i)
		if err != nil {
			return nil, err
		}
		out[resolvedObj.ID] = resolvedObj.Obj
	}
	return out, nil
}

// readRecord parses the header and inflates the body of the record
// starting at pos, returning the record and the total number of bytes
// (header + compressed body) it occupied.
func readRecord(buf []byte, pos int) (rawRecord, int, error) {
	if pos >= len(buf) {
		return rawRecord{}, 0, xerrors.Errorf("record header past end of pack: %w", ErrPackCorrupt)
	}
	cursor := pos
	first := buf[cursor]
	cursor++

	typ := object.Type((first >> 4) & 0x07)
	if !typ.IsValid() {
		return rawRecord{}, 0, xerrors.Errorf("unknown record type %d at offset %d: %w", typ, pos, ErrPackCorrupt)
	}

	src := bytes.NewReader(buf[cursor:])
	size, consumed, err := varint.ReadVLQFirst4Then7(src, first)
	if err != nil {
		return rawRecord{}, 0, xerrors.Errorf("record at offset %d: %w", pos, err)
	}
	cursor += consumed

	rec := rawRecord{offset: pos, typ: typ, size: size}

	switch typ {
	case object.TypeRefDelta:
		if cursor+githash.OidSize > len(buf) {
			return rawRecord{}, 0, xerrors.Errorf("truncated ref-delta base at offset %d: %w", pos, ErrPackCorrupt)
		}
		baseOid, err := githash.NewFromHex(buf[cursor : cursor+githash.OidSize])
		if err != nil {
			return rawRecord{}, 0, xerrors.Errorf("invalid ref-delta base at offset %d: %w", pos, ErrPackCorrupt)
		}
		rec.baseOid = baseOid
		cursor += githash.OidSize
	case object.TypeOfsDelta:
		src = bytes.NewReader(buf[cursor:])
		negOffset, consumed, err := varint.ReadNegativeOffset(src)
		if err != nil {
			return rawRecord{}, 0, xerrors.Errorf("ofs-delta at offset %d: %w", pos, err)
		}
		if negOffset > uint64(pos) {
			return rawRecord{}, 0, xerrors.Errorf("ofs-delta at offset %d points before start of pack: %w", pos, ErrPackCorrupt)
		}
		rec.baseOffset = pos - int(negOffset)
		cursor += consumed
	}

	content, zlibConsumed, err := inflate(buf[cursor:])
	if err != nil {
		return rawRecord{}, 0, xerrors.Errorf("could not inflate record at offset %d: %w", pos, ErrPackCorrupt)
	}
	if uint64(len(content)) != size {
		return rawRecord{}, 0, xerrors.Errorf("record at offset %d: declared size %d, got %d: %w", pos, size, len(content), ErrPackCorrupt)
	}
	rec.content = content
	cursor += zlibConsumed

	return rec, cursor - pos, nil
}

// inflate zlib-decompresses the stream starting at the front of buf and
// reports exactly how many input bytes the codec consumed, so the
// caller can advance past only the compressed record and find the next
// one immediately after.
func inflate(buf []byte) (content []byte, consumed int, err error) {
	cr := &countingReader{r: bytes.NewReader(buf)}
	zr, err := zlib.NewReader(cr)
	if err != nil {
		return nil, 0, err
	}
	defer zr.Close() //nolint:errcheck // read-only stream, nothing to flush

	content, err = io.ReadAll(zr)
	if err != nil {
		return nil, 0, err
	}
	return content, cr.n, nil
}

// countingReader implements io.ByteReader so the zlib/flate reader reads
// from it directly instead of wrapping it in a read-ahead bufio.Reader,
// which would make n count bytes past the end of the compressed stream.
type countingReader struct {
	r *bytes.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// resolver lazily and recursively resolves delta records against their
// bases, memoizing results by record index.
type resolver struct {
	records     []rawRecord
	offsetIndex map[int]int
	resolved    map[int]Object
	resolving   map[int]bool
	lookup      BaseLookup
}

func (r *resolver) resolve(i int) (Object, error) {
	if o, ok := r.resolved[i]; ok {
		return o, nil
	}
	// A record already on the call stack (resolving itself, directly or
	// through another delta) can't be resolved by recursing into it
	// again: that's either the in-progress record itself (ref-delta's
	// base search walks every record, including its own) or a genuine
	// cycle. Either way, reporting it unresolved here lets the caller's
	// loop move on to the next candidate, or fall through to lookup.
	if r.resolving[i] {
		return Object{}, xerrors.Errorf("record %d depends on itself while resolving: %w", i, ErrPackCorrupt)
	}
	r.resolving[i] = true
	defer delete(r.resolving, i)

	rec := r.records[i]
	var result Object
	switch rec.typ {
	case object.TypeCommit, object.TypeTree, object.TypeBlob, object.TypeTag:
		o := object.New(rec.typ, rec.content)
		result = Object{ID: o.ID(), Obj: o}
	case object.TypeRefDelta, object.TypeOfsDelta:
		base, err := r.resolveBase(rec)
		if err != nil {
			return Object{}, err
		}
		o, err := applyDelta(base, rec.content)
		if err != nil {
			return Object{}, err
		}
		result = Object{ID: o.ID(), Obj: o}
	default:
		return Object{}, xerrors.Errorf("unsupported record type %d: %w", rec.typ, ErrPackCorrupt)
	}

	r.resolved[i] = result
	return result, nil
}

func (r *resolver) resolveBase(rec rawRecord) (*object.Object, error) {
	if rec.typ == object.TypeOfsDelta {
		idx, ok := r.offsetIndex[rec.baseOffset]
		if !ok {
			return nil, xerrors.Errorf("ofs-delta base at offset %d not found: %w", rec.baseOffset, ErrPackCorrupt)
		}
		base, err := r.resolve(idx)
		if err != nil {
			return nil, err
		}
		return base.Obj, nil
	}

	// ref-delta: look for the base among this pack's records first.
	for idx, other := range r.records {
		if other.typ == object.TypeRefDelta || other.typ == object.TypeOfsDelta {
			continue
		}
		candidate := object.New(other.typ, other.content)
		if candidate.ID() == rec.baseOid {
			return r.memoizeDirect(idx, candidate), nil
		}
	}
	// Deltas against deltas, resolved out of declaration order, still
	// need a pass through resolve() so the memo table stays correct.
	for idx := range r.records {
		resolvedObj, err := r.resolve(idx)
		if err != nil {
			continue
		}
		if resolvedObj.ID == rec.baseOid {
			return resolvedObj.Obj, nil
		}
	}

	if r.lookup != nil {
		if o, ok := r.lookup(rec.baseOid); ok {
			return o, nil
		}
	}
	return nil, xerrors.Errorf("ref-delta base %s not found: %w", rec.baseOid, ErrPackCorrupt)
}

func (r *resolver) memoizeDirect(idx int, o *object.Object) *object.Object {
	if _, ok := r.resolved[idx]; !ok {
		r.resolved[idx] = Object{ID: o.ID(), Obj: o}
	}
	return o
}

// applyDelta reconstructs a target object from a base and a delta
// instruction stream: two read_vlq_full7 lengths (source, target)
// followed by a sequence of Copy/Insert instructions.
func applyDelta(base *object.Object, delta []byte) (*object.Object, error) {
	src := bytes.NewReader(delta)

	sourceLen, _, err := varint.ReadVLQFull7(src)
	if err != nil {
		return nil, xerrors.Errorf("delta source length: %w", err)
	}
	if int(sourceLen) != base.Size() {
		return nil, xerrors.Errorf("delta base size mismatch: expected %d, got %d: %w", sourceLen, base.Size(), ErrBadDelta)
	}

	targetLen, _, err := varint.ReadVLQFull7(src)
	if err != nil {
		return nil, xerrors.Errorf("delta target length: %w", err)
	}

	out := make([]byte, 0, targetLen)
	baseContent := base.Bytes()

	for {
		opByte, err := src.ReadByte()
		if err != nil {
			break
		}

		if opByte&0x80 != 0 {
			offset, size, err := readCopy(opByte, src)
			if err != nil {
				return nil, err
			}
			if uint64(offset)+uint64(size) > uint64(len(baseContent)) {
				return nil, xerrors.Errorf("copy offset %d size %d exceeds base length %d: %w", offset, size, len(baseContent), ErrBadDelta)
			}
			out = append(out, baseContent[offset:offset+size]...)
			continue
		}

		n := int(opByte & 0x7f)
		if n == 0 {
			return nil, xerrors.Errorf("zero-length insert: %w", ErrBadDelta)
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(src, chunk); err != nil {
			return nil, xerrors.Errorf("truncated insert: %w", ErrBadDelta)
		}
		out = append(out, chunk...)
	}

	if uint64(len(out)) != targetLen {
		return nil, xerrors.Errorf("delta target length mismatch: expected %d, got %d: %w", targetLen, len(out), ErrBadDelta)
	}

	return object.New(base.Type(), out), nil
}

// readCopy decodes a Copy instruction's offset and size fields. The low
// 7 bits of opByte are a bitmask: bits 0-3 select which of 4
// little-endian offset bytes are present, bits 4-6 select which of 3
// little-endian size bytes are present. Absent bytes default to 0; an
// all-zero size defaults to 0x10000.
func readCopy(opByte byte, src *bytes.Reader) (offset, size uint32, err error) {
	var offsetBytes, sizeBytes [4]byte
	for i := 0; i < 4; i++ {
		if opByte&(1<<uint(i)) != 0 {
			b, err := src.ReadByte()
			if err != nil {
				return 0, 0, xerrors.Errorf("truncated copy offset: %w", ErrBadDelta)
			}
			offsetBytes[i] = b
		}
	}
	for i := 0; i < 3; i++ {
		if opByte&(1<<uint(4+i)) != 0 {
			b, err := src.ReadByte()
			if err != nil {
				return 0, 0, xerrors.Errorf("truncated copy size: %w", ErrBadDelta)
			}
			sizeBytes[i] = b
		}
	}
	offset = binary.LittleEndian.Uint32(offsetBytes[:])
	size = binary.LittleEndian.Uint32(sizeBytes[:])
	if size == 0 {
		size = copyDefaultLength
	}
	return offset, size, nil
}

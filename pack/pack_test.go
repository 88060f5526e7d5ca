package pack_test

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1" //nolint:gosec // matching the format under test, not a security boundary
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/object"
	"github.com/mwillock/gogit/pack"
)

// fixtureRecord is one record to bake into a hand-built pack fixture, in
// any of git's three on-the-wire shapes: a direct object, a ref-delta
// (named base), or an ofs-delta (base given as a record index earlier
// in the same fixture).
type fixtureRecord struct {
	typ        object.Type
	content    []byte // for direct objects
	delta      []byte // for TypeRefDelta/TypeOfsDelta: the instruction stream, header excluded
	refBase    githash.Oid
	ofsBaseIdx int // index into the records slice, only for TypeOfsDelta
}

// buildPack assembles a valid pack buffer (header, records, trailing
// digest) from fixture records, mirroring the real writer side of this
// format closely enough to exercise the decoder end to end.
func buildPack(t *testing.T, records []fixtureRecord) []byte {
	t.Helper()

	var body bytes.Buffer
	recordOffset := make([]int, len(records))

	header := make([]byte, 12)
	copy(header[:4], "PACK")
	binary.BigEndian.PutUint32(header[4:8], 2)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(records)))
	body.Write(header)

	for i, rec := range records {
		recordOffset[i] = body.Len()

		payload := rec.content
		if rec.typ == object.TypeRefDelta || rec.typ == object.TypeOfsDelta {
			payload = rec.delta
		}

		writeRecordHeader(&body, rec.typ, len(payload))

		switch rec.typ {
		case object.TypeRefDelta:
			body.Write(rec.refBase.Bytes())
		case object.TypeOfsDelta:
			negOffset := recordOffset[i] - recordOffset[rec.ofsBaseIdx]
			writeNegativeOffset(&body, uint64(negOffset))
		}

		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		_, err := zw.Write(payload)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		body.Write(compressed.Bytes())
	}

	digest := sha1.Sum(body.Bytes()) //nolint:gosec // matching the format under test
	body.Write(digest[:])
	return body.Bytes()
}

func writeRecordHeader(w *bytes.Buffer, typ object.Type, size int) {
	first := byte(typ) << 4
	rest := uint64(size) >> 4
	low := byte(size) & 0x0f
	if rest != 0 {
		first |= 0x80
	}
	first |= low
	w.WriteByte(first)
	for rest != 0 {
		b := byte(rest & 0x7f)
		rest >>= 7
		if rest != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

func writeVLQFull7(w *bytes.Buffer, value uint64) {
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if value == 0 {
			return
		}
	}
}

// writeNegativeOffset mirrors varint.ReadNegativeOffset's encoding:
// big-endian 7-bit chunks, each non-terminal chunk biased by +1.
func writeNegativeOffset(w *bytes.Buffer, offset uint64) {
	var chunks []byte
	chunks = append(chunks, byte(offset&0x7f))
	offset >>= 7
	for offset != 0 {
		offset--
		chunks = append(chunks, byte(offset&0x7f))
		offset >>= 7
	}
	for i := len(chunks) - 1; i >= 0; i-- {
		b := chunks[i]
		if i != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

func directRecord(o *object.Object) fixtureRecord {
	return fixtureRecord{typ: o.Type(), content: o.Bytes()}
}

func TestDecode_DirectObjectsRoundTrip(t *testing.T) {
	blob := object.New(object.TypeBlob, []byte("hello\n"))
	records := []fixtureRecord{directRecord(blob)}
	buf := buildPack(t, records)

	objs, err := pack.Decode(buf, nil)
	require.NoError(t, err)
	require.Len(t, objs, 1)

	got, ok := objs[blob.ID()]
	require.True(t, ok)
	assert.Equal(t, "hello\n", string(got.Bytes()))
	assert.Equal(t, object.TypeBlob, got.Type())
}

func TestDecode_RefDelta(t *testing.T) {
	base := object.New(object.TypeBlob, []byte("the quick brown fox"))

	var delta bytes.Buffer
	writeVLQFull7(&delta, uint64(base.Size()))       // source length
	writeVLQFull7(&delta, uint64(len("the slow brown fox"))) // target length
	// Copy "the " (offset 0, size 4).
	delta.WriteByte(0x80 | 0x01 | 0x10) // offset byte 0 present, size byte 0 present
	delta.WriteByte(0)                  // offset = 0
	delta.WriteByte(4)                  // size = 4
	// Insert "slow".
	delta.WriteByte(4)
	delta.WriteString("slow")
	// Copy " brown fox" (offset 9, size 10).
	delta.WriteByte(0x80 | 0x01 | 0x10)
	delta.WriteByte(9)
	delta.WriteByte(10)

	records := []fixtureRecord{
		directRecord(base),
		{typ: object.TypeRefDelta, delta: delta.Bytes(), refBase: base.ID()},
	}
	buf := buildPack(t, records)

	objs, err := pack.Decode(buf, nil)
	require.NoError(t, err)
	require.Len(t, objs, 2)

	var target *object.Object
	for id, o := range objs {
		if id != base.ID() {
			target = o
		}
	}
	require.NotNil(t, target)
	assert.Equal(t, "the slow brown fox", string(target.Bytes()))
	assert.Equal(t, object.TypeBlob, target.Type())
}

func TestDecode_OfsDelta(t *testing.T) {
	base := object.New(object.TypeBlob, []byte("abcdefgh"))

	var delta bytes.Buffer
	writeVLQFull7(&delta, uint64(base.Size()))
	writeVLQFull7(&delta, uint64(len("abcdefghabcdefgh")))
	// Copy the whole base once (offset 0, size 8).
	delta.WriteByte(0x80 | 0x01 | 0x10)
	delta.WriteByte(0)
	delta.WriteByte(8)
	// Copy it again.
	delta.WriteByte(0x80 | 0x01 | 0x10)
	delta.WriteByte(0)
	delta.WriteByte(8)

	records := []fixtureRecord{
		directRecord(base),
		{typ: object.TypeOfsDelta, delta: delta.Bytes(), ofsBaseIdx: 0},
	}
	buf := buildPack(t, records)

	objs, err := pack.Decode(buf, nil)
	require.NoError(t, err)

	var target *object.Object
	for id, o := range objs {
		if id != base.ID() {
			target = o
		}
	}
	require.NotNil(t, target)
	assert.Equal(t, "abcdefghabcdefgh", string(target.Bytes()))
}

func TestDecode_CopyWithZeroMask_DefaultsTo64KiB(t *testing.T) {
	content := bytes.Repeat([]byte{'x'}, 0x10000)
	base := object.New(object.TypeBlob, content)

	var delta bytes.Buffer
	writeVLQFull7(&delta, uint64(base.Size()))
	writeVLQFull7(&delta, uint64(len(content)))
	// Copy instruction with every offset/size byte absent: offset
	// defaults to 0, size defaults to 0x10000 (scenario 6).
	delta.WriteByte(0x80)

	records := []fixtureRecord{
		directRecord(base),
		{typ: object.TypeRefDelta, delta: delta.Bytes(), refBase: base.ID()},
	}
	buf := buildPack(t, records)

	objs, err := pack.Decode(buf, nil)
	require.NoError(t, err)

	var target *object.Object
	for id, o := range objs {
		if id != base.ID() {
			target = o
		}
	}
	require.NotNil(t, target)
	assert.Equal(t, content, target.Bytes())
}

func TestDecode_RefDeltaResolvedAgainstLocalStore(t *testing.T) {
	base := object.New(object.TypeBlob, []byte("stored elsewhere"))

	var delta bytes.Buffer
	writeVLQFull7(&delta, uint64(base.Size()))
	writeVLQFull7(&delta, uint64(len("stored elsewhere!")))
	delta.WriteByte(0x80 | 0x01 | 0x10)
	delta.WriteByte(0)
	delta.WriteByte(16)
	delta.WriteByte(1)
	delta.WriteString("!")

	records := []fixtureRecord{
		{typ: object.TypeRefDelta, delta: delta.Bytes(), refBase: base.ID()},
	}
	buf := buildPack(t, records)

	lookup := func(oid githash.Oid) (*object.Object, bool) {
		if oid == base.ID() {
			return base, true
		}
		return nil, false
	}

	objs, err := pack.Decode(buf, lookup)
	require.NoError(t, err)
	require.Len(t, objs, 1)

	for _, o := range objs {
		assert.Equal(t, "stored elsewhere!", string(o.Bytes()))
	}
}

func TestDecode_BadMagic(t *testing.T) {
	buf := append([]byte("NOPE"), make([]byte, 28)...)
	_, err := pack.Decode(buf, nil)
	assert.ErrorIs(t, err, pack.ErrPackCorrupt)
}

func TestDecode_TrailerMismatch(t *testing.T) {
	blob := object.New(object.TypeBlob, []byte("x"))
	buf := buildPack(t, []fixtureRecord{directRecord(blob)})
	buf[len(buf)-1] ^= 0xff
	_, err := pack.Decode(buf, nil)
	assert.ErrorIs(t, err, pack.ErrPackCorrupt)
}

func TestDecode_UnresolvableRefDelta(t *testing.T) {
	missing := object.New(object.TypeBlob, []byte("never present")).ID()

	var delta bytes.Buffer
	writeVLQFull7(&delta, 0)
	writeVLQFull7(&delta, 1)
	delta.WriteByte(1)
	delta.WriteString("x")

	buf := buildPack(t, []fixtureRecord{
		{typ: object.TypeRefDelta, delta: delta.Bytes(), refBase: missing},
	})

	_, err := pack.Decode(buf, nil)
	assert.ErrorIs(t, err, pack.ErrPackCorrupt)
}

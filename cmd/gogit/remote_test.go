package main

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1" //nolint:gosec // matching the format under test
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwillock/gogit/object"
	"github.com/mwillock/gogit/pktline"
)

func buildFixturePack(t *testing.T) (packBytes []byte, commitID string) {
	t.Helper()

	blob := object.New(object.TypeBlob, []byte("hi\n"))
	tree := object.NewTree([]object.TreeEntry{
		{Mode: object.ModeForFile(false), Name: "file.txt", ID: blob.ID()},
	})
	author := object.NewSignature("Fixture", "fixture@example.com", time.Unix(1700000000, 0))
	commit := object.NewCommit(tree.ID(), nil, author, author, "fixture commit\n")

	var body bytes.Buffer
	header := make([]byte, 12)
	copy(header[:4], "PACK")
	binary.BigEndian.PutUint32(header[4:8], 2)
	binary.BigEndian.PutUint32(header[8:12], 3)
	body.Write(header)

	for _, o := range []*object.Object{blob, tree.ToObject(), commit.ToObject()} {
		size := o.Size()
		first := byte(o.Type()) << 4
		rest := uint64(size) >> 4
		low := byte(size) & 0x0f
		if rest != 0 {
			first |= 0x80
		}
		first |= low
		body.WriteByte(first)
		for rest != 0 {
			b := byte(rest & 0x7f)
			rest >>= 7
			if rest != 0 {
				b |= 0x80
			}
			body.WriteByte(b)
		}

		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		_, err := zw.Write(o.Bytes())
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		body.Write(compressed.Bytes())
	}

	digest := sha1.Sum(body.Bytes()) //nolint:gosec
	body.Write(digest[:])

	return body.Bytes(), commit.ID().String()
}

func newFixtureServer(t *testing.T, packBytes []byte, commitID string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/info/refs":
			w.Header().Set("Content-Type", "application/x-git-upload-pack-advertisement")
			w.Write(pktline.Encode([]byte("# service=git-upload-pack\n"))) //nolint:errcheck
			w.Write(pktline.Flush())                                      //nolint:errcheck
			w.Write(pktline.Encode([]byte(fmt.Sprintf("%s HEAD\x00agent=git/1.8.1\n", commitID))))  //nolint:errcheck
			w.Write(pktline.Encode([]byte(fmt.Sprintf("%s refs/heads/master\n", commitID))))          //nolint:errcheck
			w.Write(pktline.Flush())                                      //nolint:errcheck
		case r.URL.Path == "/git-upload-pack":
			w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
			w.Write(pktline.Encode([]byte("NAK\n"))) //nolint:errcheck
			w.Write(packBytes)                       //nolint:errcheck
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestLsRemoteCmd(t *testing.T) {
	t.Parallel()

	packBytes, commitID := buildFixturePack(t)
	server := newFixtureServer(t, packBytes, commitID)
	defer server.Close()

	out := bytes.NewBufferString("")
	require.NoError(t, lsRemoteCmd(out, server.URL))

	assert.Contains(t, out.String(), commitID+"\tHEAD\n")
	assert.Contains(t, out.String(), commitID+"\trefs/heads/master\n")
}

func TestCloneCmd(t *testing.T) {
	t.Parallel()

	packBytes, commitID := buildFixturePack(t)
	server := newFixtureServer(t, packBytes, commitID)
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clone")
	out := bytes.NewBufferString("")
	require.NoError(t, cloneCmd(out, server.URL, dest))

	assert.Contains(t, out.String(), fmt.Sprintf("Cloned into %s\n", dest))

	content, err := os.ReadFile(filepath.Join(dest, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(content))
}

package object_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mwillock/gogit/object"
)

func TestNewBlob(t *testing.T) {
	b := object.NewBlob([]byte("package main\n"))
	assert.Equal(t, "package main\n", string(b.Bytes()))
	assert.Equal(t, object.TypeBlob, b.ToObject().Type())
	assert.False(t, b.ID().IsZero())
}

func TestBlob_EmptyContent(t *testing.T) {
	b := object.NewBlob(nil)
	assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", b.ID().String())
}

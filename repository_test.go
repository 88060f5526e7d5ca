package gogit_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwillock/gogit"
	"github.com/mwillock/gogit/object"
)

func TestInitRepository_And_OpenRepository(t *testing.T) {
	fs := afero.NewMemMapFs()

	repo, err := gogit.InitRepository(fs, "/work")
	require.NoError(t, err)
	require.NotNil(t, repo)

	reopened, err := gogit.OpenRepository(fs, "/work")
	require.NoError(t, err)
	require.NotNil(t, reopened)
}

func TestOpenRepository_MissingHEAD(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := gogit.OpenRepository(fs, "/nowhere")
	assert.ErrorIs(t, err, gogit.ErrRepositoryNotExist)
}

func TestHashObject_And_CatObject(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, err := gogit.InitRepository(fs, "/work")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "/work/hello.txt", []byte("hello\n"), 0o644))

	id, err := repo.HashObject("/work/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", id.String())

	content, typ, err := repo.CatObject(id)
	require.NoError(t, err)
	assert.Equal(t, object.TypeBlob, typ)
	assert.Equal(t, "hello\n", string(content))
}

func TestWriteTree_And_CommitTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, err := gogit.InitRepository(fs, "/work")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "/work/a.txt", []byte("a"), 0o644))

	treeID, err := repo.WriteTree()
	require.NoError(t, err)

	names, err := repo.LsTree(treeID)
	require.NoError(t, err)
	assert.Contains(t, names, "a.txt")

	author := object.NewSignature("Test", "test@example.com", time.Unix(0, 0))
	commitID, err := repo.CommitTree(treeID, nil, author, "initial commit\n")
	require.NoError(t, err)

	content, typ, err := repo.CatObject(commitID)
	require.NoError(t, err)
	assert.Equal(t, object.TypeCommit, typ)
	assert.Contains(t, string(content), treeID.String())
}

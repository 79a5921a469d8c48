package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("0b7f3f5e-0000-4000-8000-000000000001", 0)
	b := PointID("0b7f3f5e-0000-4000-8000-000000000001", 0)
	assert.Equal(t, a, b)

	c := PointID("0b7f3f5e-0000-4000-8000-000000000001", 1)
	assert.NotEqual(t, a, c)

	d := PointID("0b7f3f5e-0000-4000-8000-000000000002", 0)
	assert.NotEqual(t, a, d)
}

func TestTableName(t *testing.T) {
	tbl, err := tableName("my_knowledge_bge-m3")
	require.NoError(t, err)
	assert.Equal(t, `"vec_my_knowledge_bge-m3"`, tbl)

	tbl, err = tableName("my_knowledge_bge-large-zh-v1.5")
	require.NoError(t, err)
	assert.Equal(t, `"vec_my_knowledge_bge-large-zh-v1.5"`, tbl)

	for _, bad := range []string{
		"",
		"has space",
		`quo"te`,
		"semi;colon",
		"-leading-dash",
		"waaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaay-too-long-collection-name",
	} {
		_, err := tableName(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `plain`, escapeLike("plain"))
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `back\\slash`, escapeLike(`back\slash`))
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/huginn/pkg/codec"
	"github.com/orneryd/huginn/pkg/ident"
)

func TestNodeView_MatchesMaterialized(t *testing.T) {
	db := openTemp(t, nil)

	id, err := db.AddNode([]string{"Person"}, map[string]codec.Value{
		"name": codec.Text("ada"),
		"age":  codec.Int(36),
	})
	require.NoError(t, err)

	tx, err := db.Begin(false)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	view, err := tx.Node(id)
	require.NoError(t, err)
	assert.Equal(t, id, view.ID())

	labels, err := view.Labels()
	require.NoError(t, err)
	assert.Equal(t, []string{"Person"}, labels)

	has, err := view.HasLabel("Person")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = view.HasLabel("Admin")
	require.NoError(t, err)
	assert.False(t, has)

	val, ok, err := view.Property("age")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, val.Equal(codec.Int(36)))
	_, ok, err = view.Property("nope")
	require.NoError(t, err)
	assert.False(t, ok)

	owned, err := view.Materialize()
	require.NoError(t, err)
	assert.Equal(t, id, owned.ID)
	assert.Equal(t, labels, owned.Labels)
	assert.True(t, owned.Properties["name"].Equal(codec.Text("ada")))
}

func TestNodeView_AfterClose(t *testing.T) {
	db := openTemp(t, nil)

	id, err := db.AddNode(nil, map[string]codec.Value{"name": codec.Text("x")})
	require.NoError(t, err)

	tx, err := db.Begin(false)
	require.NoError(t, err)
	view, err := tx.Node(id)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = view.Labels()
	require.ErrorIs(t, err, ErrTxClosed)
	_, _, err = view.Property("name")
	require.ErrorIs(t, err, ErrTxClosed)
	_, err = view.Materialize()
	require.ErrorIs(t, err, ErrTxClosed)
}

func TestEdgeView_Accessors(t *testing.T) {
	db := openTemp(t, nil)

	var a, b, e ident.EntityID
	require.NoError(t, db.Update(func(tx *Txn) error {
		var err error
		a, err = tx.AddNode(nil, nil)
		require.NoError(t, err)
		b, err = tx.AddNode(nil, nil)
		require.NoError(t, err)
		e, err = tx.AddEdge(a, b, "knows", map[string]codec.Value{"since": codec.Int(2019)})
		return err
	}))

	require.NoError(t, db.View(func(tx *Txn) error {
		view, err := tx.Edge(e)
		require.NoError(t, err)

		from, err := view.From()
		require.NoError(t, err)
		assert.Equal(t, a, from)
		to, err := view.To()
		require.NoError(t, err)
		assert.Equal(t, b, to)
		label, err := view.Label()
		require.NoError(t, err)
		assert.Equal(t, "knows", label)

		owned, err := view.Materialize()
		require.NoError(t, err)
		assert.Equal(t, e, owned.ID)
		assert.True(t, owned.Properties["since"].Equal(codec.Int(2019)))
		return nil
	}))
}

func TestGetNode_SurvivesClose(t *testing.T) {
	db := openTemp(t, nil)

	id, err := db.AddNode([]string{"Person"}, map[string]codec.Value{"name": codec.Text("ada")})
	require.NoError(t, err)

	var owned *Node
	require.NoError(t, db.View(func(tx *Txn) error {
		var err error
		owned, err = tx.GetNode(id)
		return err
	}))

	// Owned results must not alias the transaction's mapped memory.
	assert.Equal(t, []string{"Person"}, owned.Labels)
	assert.True(t, owned.Properties["name"].Equal(codec.Text("ada")))
	assert.True(t, owned.HasLabel("Person"))
}

func TestNode_NotFound(t *testing.T) {
	db := openTemp(t, nil)

	require.NoError(t, db.View(func(tx *Txn) error {
		ghost := ident.New()
		_, err := tx.Node(ghost)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, ghost, nf.ID)

		_, err = tx.Edge(ghost)
		require.ErrorAs(t, err, &nf)
		return nil
	}))
}

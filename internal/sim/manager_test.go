package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockflow/internal/compile"
	"blockflow/internal/models"
)

func newManagerWithModel(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	t.Cleanup(m.Close)
	c := compile.Compile(firstOrderModel(0.01))
	require.False(t, c.HasErrors())
	m.RegisterModel(c)
	return m
}

func TestManagerModelRegistry(t *testing.T) {
	m := newManagerWithModel(t)
	assert.Equal(t, []string{"first_order"}, m.ListModels())

	c, err := m.GetModel("first_order")
	require.NoError(t, err)
	assert.Equal(t, "first_order", c.Model.Name)

	_, err = m.GetModel("missing")
	assert.Error(t, err)
}

func TestManagerSessionLifecycle(t *testing.T) {
	m := newManagerWithModel(t)

	status, err := m.CreateSession("", "first_order")
	require.NoError(t, err)
	assert.NotEmpty(t, status.ID, "an id is minted when none is supplied")

	named, err := m.CreateSession("mine", "first_order")
	require.NoError(t, err)
	assert.Equal(t, "mine", named.ID)

	_, err = m.CreateSession("mine", "first_order")
	assert.Error(t, err, "session ids are unique")

	sessions := m.ListSessions()
	assert.Len(t, sessions, 2)

	require.NoError(t, m.SetInput("mine", "u", models.ScalarValue(1.0)))
	after, err := m.Step("mine", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, after.Steps)
	assert.InDelta(t, 0.1, after.Time, 1e-12)

	outputs, err := m.Outputs("mine")
	require.NoError(t, err)
	assert.Contains(t, outputs, "y")

	require.NoError(t, m.DeleteSession("mine"))
	_, err = m.GetSession("mine")
	assert.Error(t, err)
}

func TestManagerUnregisterClosesSessions(t *testing.T) {
	m := newManagerWithModel(t)
	_, err := m.CreateSession("s", "first_order")
	require.NoError(t, err)

	require.NoError(t, m.UnregisterModel("first_order"))
	_, err = m.GetSession("s")
	assert.Error(t, err, "sessions die with their model")
	assert.Empty(t, m.ListModels())
}

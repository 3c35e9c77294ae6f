package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitrealm/server/internal/world"
)

func TestValidName(t *testing.T) {
	for _, good := range []string{"bob", "Alice", "x9y", "Gandalf2000"} {
		assert.True(t, ValidName(good), "name %q", good)
	}
	for _, bad := range []string{
		"", "ab", "1bob", "bo b", "bob!", "../sneak",
		"averyveryverylongname9000",
	} {
		assert.False(t, ValidName(bad), "name %q", bad)
	}
}

func TestAccountCreateAndLogin(t *testing.T) {
	a := NewAccounts(t.TempDir())

	acct, err := a.Create("Bob", "secret", false)
	require.NoError(t, err)
	assert.Equal(t, "Bob", acct.Name)
	assert.False(t, acct.Wizard)
	assert.True(t, a.Exists("Bob"))
	assert.True(t, a.Exists("bob"), "lookup is case-insensitive")

	got, err := a.Login("Bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Name)

	_, err = a.Login("Bob", "wrong")
	assert.ErrorIs(t, err, ErrWrongPass)

	_, err = a.Login("Nobody", "secret")
	assert.ErrorIs(t, err, ErrNoAccount)

	_, err = a.Login("!!", "secret")
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestAccountCreateRejectsBadInput(t *testing.T) {
	a := NewAccounts(t.TempDir())

	_, err := a.Create("x", "secret", false)
	assert.ErrorIs(t, err, ErrBadName)

	_, err = a.Create("bob", "abc", false)
	assert.ErrorIs(t, err, ErrBadPassword)

	_, err = a.Create("bob", "secret", false)
	require.NoError(t, err)
	_, err = a.Create("BOB", "secret", false)
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestAccountPasswordNeverStoredPlain(t *testing.T) {
	root := t.TempDir()
	a := NewAccounts(root)
	_, err := a.Create("bob", "hunter2345", false)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "b", "bob", "bob.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2345")
}

func TestAccountSaveRoundTripsState(t *testing.T) {
	a := NewAccounts(t.TempDir())
	acct, err := a.Create("bob", "secret", true)
	require.NoError(t, err)

	acct.LastRoom = "rooms/church"
	acct.State = map[string]world.Value{
		"hp":    world.IntValue(17),
		"title": world.StringValue("the Bold"),
	}
	require.NoError(t, a.Save(acct))

	got, err := a.Login("bob", "secret")
	require.NoError(t, err)
	assert.True(t, got.Wizard)
	assert.Equal(t, "rooms/church", got.LastRoom)
	assert.Equal(t, world.IntValue(17), got.State["hp"])
	assert.Equal(t, world.StringValue("the Bold"), got.State["title"])
}

func TestAccountCarriesInventoryAndEquipment(t *testing.T) {
	root := t.TempDir()
	a := NewAccounts(root)
	acct, err := a.Create("bob", "secret", false)
	require.NoError(t, err)

	// the keys are part of the document even while empty
	data, err := os.ReadFile(filepath.Join(root, "b", "bob", "bob.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"inventory"`)
	assert.Contains(t, string(data), `"equipment"`)

	acct.Inventory = []string{"items/sword#000002", "items/coin#000007"}
	acct.Equipment = map[string]string{"wielded": "items/sword#000002"}
	require.NoError(t, a.Save(acct))

	got, err := a.Login("bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, acct.Inventory, got.Inventory)
	assert.Equal(t, acct.Equipment, got.Equipment)
}

func TestAccountSaltsDiffer(t *testing.T) {
	a := NewAccounts(t.TempDir())
	b1, err := a.Create("bob", "samepass", false)
	require.NoError(t, err)
	b2, err := a.Create("rob", "samepass", false)
	require.NoError(t, err)

	assert.NotEqual(t, b1.Salt, b2.Salt)
	assert.NotEqual(t, b1.PasswordHash, b2.PasswordHash)
}

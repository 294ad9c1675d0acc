package game_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Calindra/cartesi-drand/game"
)

func registerAndJoin(t *testing.T, m *game.Manager, gameID, name string) *game.Player {
	t.Helper()
	p, err := game.NewPlayer(name)
	require.NoError(t, err)
	require.NoError(t, m.AddPlayer(p))
	require.NoError(t, m.JoinGame(gameID, p))
	return p
}

func TestNewManagerWithGamesSeedsRoster(t *testing.T) {
	m := game.NewManagerWithGames(3)
	report := m.Games()
	require.Len(t, report.Games, 3)
	require.Equal(t, "1", report.Games[0].ID)
}

func TestJoinGameRequiresRegisteredPlayer(t *testing.T) {
	m := game.NewManagerWithGames(1)
	p, err := game.NewPlayer("Ghost")
	require.NoError(t, err)

	err = m.JoinGame("1", p)
	require.ErrorIs(t, err, game.ErrPlayerNotFound)
}

func TestStartGameRequiresTwoPlayers(t *testing.T) {
	m := game.NewManagerWithGames(1)
	registerAndJoin(t, m, "1", "Solo")

	_, err := m.StartGame("1", 2, 1000)
	require.ErrorIs(t, err, game.ErrTooFewPlayers)
}

func TestStartGameMovesLobbyToTable(t *testing.T) {
	m := game.NewManagerWithGames(1)
	registerAndJoin(t, m, "1", "Alice")
	registerAndJoin(t, m, "1", "Bob")

	table, err := m.StartGame("1", 2, 1000)
	require.NoError(t, err)
	require.Len(t, m.Games().Games, 0)

	got, err := m.GetTable(table.ID)
	require.NoError(t, err)
	require.Equal(t, table.ID, got.ID)
}

func TestStopGameProducesScoreboardAndRecyclesLobby(t *testing.T) {
	m := game.NewManagerWithGames(1)
	registerAndJoin(t, m, "1", "Alice")
	registerAndJoin(t, m, "1", "Bob")

	table, err := m.StartGame("1", 1, 1000)
	require.NoError(t, err)

	scoreboard, err := m.StopGame(table.ID)
	require.NoError(t, err)
	require.Equal(t, table.ID, scoreboard.ID)
	require.Len(t, scoreboard.Players, 2)

	_, err = m.GetTable(table.ID)
	require.ErrorIs(t, err, game.ErrTableNotFound)

	require.Len(t, m.Games().Games, 1)
	require.EqualValues(t, 0, m.Games().Games[0].Players)

	got, err := m.Scoreboard(table.ID)
	require.NoError(t, err)
	require.Equal(t, scoreboard.ID, got.ID)
}

func TestTableHitAndStandAdvanceRound(t *testing.T) {
	m := game.NewManagerWithGames(1)
	alice := registerAndJoin(t, m, "1", "Alice")
	bob := registerAndJoin(t, m, "1", "Bob")

	table, err := m.StartGame("1", 1, 1000)
	require.NoError(t, err)
	require.EqualValues(t, 1, table.Round)

	require.NoError(t, table.Hit(alice.ID, 1001, "seed-alice"))
	require.EqualValues(t, 1, table.Round, "round should not advance until every hand moves")

	require.NoError(t, table.Stand(bob.ID, 1002))
	require.EqualValues(t, 2, table.Round)
}

func TestTableWinnerNilOnTie(t *testing.T) {
	m := game.NewManagerWithGames(1)
	alice := registerAndJoin(t, m, "1", "Alice")
	bob := registerAndJoin(t, m, "1", "Bob")

	table, err := m.StartGame("1", 1, 1000)
	require.NoError(t, err)

	require.NoError(t, table.Stand(alice.ID, 1))
	require.NoError(t, table.Stand(bob.ID, 1))

	require.Nil(t, table.Winner(), "two untouched hands at 0 points tie and draw")
}

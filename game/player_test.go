package game_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Calindra/cartesi-drand/game"
)

func TestValidateName(t *testing.T) {
	require.NoError(t, game.ValidateName("Bob"))
	require.Error(t, game.ValidateName("ab"))
	require.Error(t, game.ValidateName(""))
}

func TestNewPlayerDerivesIDFromName(t *testing.T) {
	p, err := game.NewPlayer("Alice")
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, "Alice", p.Name)
}

func TestHitDoesNotStandBelowTwentyOne(t *testing.T) {
	player, err := game.NewPlayer("Carl")
	require.NoError(t, err)
	hand := game.NewPlayerHand(player, 100)

	require.NoError(t, hand.Hit(&game.Deck{Cards: []game.Card{{Rank: game.King, Suit: game.Spades}}}, 101, "seed-a"))
	require.False(t, hand.Standing)

	require.NoError(t, hand.Hit(&game.Deck{Cards: []game.Card{{Rank: game.Jack, Suit: game.Hearts}}}, 102, "seed-b"))
	require.EqualValues(t, 20, hand.Points)
	require.False(t, hand.Standing)
}

func TestHitRejectsWhenStanding(t *testing.T) {
	player, err := game.NewPlayer("Dana")
	require.NoError(t, err)
	hand := game.NewPlayerHand(player, 0)
	hand.Stand(1)

	deck := &game.Deck{Cards: []game.Card{{Rank: game.Two, Suit: game.Clubs}}}
	err = hand.Hit(deck, 2, "seed")
	require.ErrorIs(t, err, game.ErrPlayerStanding)
}

func TestHitAceSoftReduction(t *testing.T) {
	player, err := game.NewPlayer("Eve")
	require.NoError(t, err)
	hand := game.NewPlayerHand(player, 0)

	require.NoError(t, hand.Hit(&game.Deck{Cards: []game.Card{{Rank: game.King, Suit: game.Spades}}}, 1, "s1"))
	require.NoError(t, hand.Hit(&game.Deck{Cards: []game.Card{{Rank: game.Queen, Suit: game.Hearts}}}, 2, "s2"))
	require.EqualValues(t, 20, hand.Points)
	require.False(t, hand.Standing)

	require.NoError(t, hand.Hit(&game.Deck{Cards: []game.Card{{Rank: game.Ace, Suit: game.Diamonds}}}, 3, "s3"))
	require.EqualValues(t, 21, hand.Points)
	require.True(t, hand.Standing)

	require.ErrorIs(t, hand.Hit(&game.Deck{Cards: []game.Card{{Rank: game.Two, Suit: game.Clubs}}}, 4, "s4"), game.ErrPlayerStanding)
}

func TestHitOnEmptyDeck(t *testing.T) {
	player, err := game.NewPlayer("Finn")
	require.NoError(t, err)
	hand := game.NewPlayerHand(player, 0)
	deck := &game.Deck{}

	err = hand.Hit(deck, 1, "seed")
	require.ErrorIs(t, err, game.ErrDeckEmpty)
	require.True(t, hand.Standing)
}

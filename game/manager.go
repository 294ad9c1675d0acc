package game

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrGameNotFound       = errors.New("game not found")
	ErrTableNotFound      = errors.New("table not found or not started")
	ErrNoGamesAvailable   = errors.New("no games available")
	ErrTooFewPlayers      = errors.New("minimum number of players not reached")
	ErrTableFull          = errors.New("maximum number of players reached")
	maxPlayersPerTable    = 7
	minPlayersToStartGame = 2
)

// Game is a lobby a registered player can join before a round starts.
type Game struct {
	ID      string
	Players []*Player
}

// NewGame builds an empty lobby identified by id.
func NewGame(id string) *Game {
	return &Game{ID: id}
}

// HasPlayer reports whether id has already joined this lobby.
func (g *Game) HasPlayer(id string) bool {
	for _, p := range g.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// RoundStart turns a populated lobby into a running Table dealing from
// nthDecks decks combined into one pile.
func (g *Game) RoundStart(nthDecks int, lastTimestamp uint64) (*Table, error) {
	if len(g.Players) < minPlayersToStartGame {
		return nil, ErrTooFewPlayers
	}
	return newTable(g, nthDecks, lastTimestamp)
}

// Table is a game in progress: a shared deck and one hand per player.
type Table struct {
	ID    string
	Game  *Game
	Round uint8

	deckMu sync.Mutex
	deck   *Deck
	hands  []*PlayerHand
}

func newTable(game *Game, nthDecks int, lastTimestamp uint64) (*Table, error) {
	deck, err := NewDeck(nthDecks)
	if err != nil {
		return nil, err
	}

	table := &Table{
		ID:    uuid.NewString(),
		Game:  game,
		Round: 1,
		deck:  deck,
	}
	for _, p := range game.Players {
		table.hands = append(table.hands, NewPlayerHand(p, lastTimestamp))
	}
	return table, nil
}

func (t *Table) handFor(playerID string) (*PlayerHand, error) {
	for _, h := range t.hands {
		if h.Player.ID == playerID {
			return h, nil
		}
	}
	return nil, ErrPlayerNotFound
}

// HasPlayer reports whether playerID has a hand at this table.
func (t *Table) HasPlayer(playerID string) bool {
	_, err := t.handFor(playerID)
	return err == nil
}

// Hit draws a card for playerID, guarded by the table's single deck mutex —
// the same lock also guards the winner scan in Winner, since a concurrent
// draw must never race a hand-points read.
func (t *Table) Hit(playerID string, timestamp uint64, seed string) error {
	t.deckMu.Lock()
	defer t.deckMu.Unlock()

	hand, err := t.handFor(playerID)
	if err != nil {
		return err
	}
	if t.Round != hand.Round {
		return ErrRoundMismatch
	}
	if err := hand.Hit(t.deck, timestamp, seed); err != nil {
		return err
	}
	t.advanceRound()
	return nil
}

// Stand marks playerID's hand done for the round.
func (t *Table) Stand(playerID string, lastTimestamp uint64) error {
	t.deckMu.Lock()
	defer t.deckMu.Unlock()

	hand, err := t.handFor(playerID)
	if err != nil {
		return err
	}
	hand.Stand(lastTimestamp)
	t.advanceRound()
	return nil
}

// advanceRound bumps the table round once every hand has either stood or
// already moved past the current round. Must be called with deckMu held.
func (t *Table) advanceRound() {
	for _, h := range t.hands {
		if !h.Standing && h.Round == t.Round {
			return
		}
	}
	t.Round++
}

// AnyPlayerCanHit reports whether at least one hand is still able to take a
// card. Callers use this to decide whether a round just finished the table.
func (t *Table) AnyPlayerCanHit() bool {
	t.deckMu.Lock()
	defer t.deckMu.Unlock()
	for _, h := range t.hands {
		if !h.Standing {
			return true
		}
	}
	return false
}

// DealOpeningCard deals one card to every hand still able to take one. It is
// called twice at table start for the standard two-card opening hand and
// does not touch a hand's round counter, since the opening deal is not
// itself a turn-taking action the way Hit is. seedFor supplies one fresh
// randomness seed per player still in play.
func (t *Table) DealOpeningCard(timestamp uint64, seedFor func(playerID string) (string, error)) error {
	t.deckMu.Lock()
	defer t.deckMu.Unlock()

	for _, h := range t.hands {
		if h.Standing {
			continue
		}
		seed, err := seedFor(h.Player.ID)
		if err != nil {
			return err
		}
		if err := h.dealCard(t.deck, seed); err != nil && !errors.Is(err, ErrDeckEmpty) {
			return err
		}
		h.LastTimestamp = timestamp
	}
	return nil
}

// TableReport is the wire shape for an in-progress table.
type TableReport struct {
	GameID  string       `json:"game_id"`
	TableID string       `json:"table_id"`
	Players []HandReport `json:"players"`
	Round   uint8        `json:"round"`
}

// Report renders the table's current hands, guarded by the deck mutex so it
// never observes a hand mid-draw.
func (t *Table) Report() TableReport {
	t.deckMu.Lock()
	defer t.deckMu.Unlock()

	players := make([]HandReport, len(t.hands))
	for i, h := range t.hands {
		players[i] = h.Report()
	}
	return TableReport{GameID: t.Game.ID, TableID: t.ID, Players: players, Round: t.Round}
}

// Winner returns the hand with the highest score at or under 21, or nil on
// a draw or bust-everywhere table. Guarded by the deck mutex so no hand is
// mid-draw while the scan runs; Hit, Stand and DealOpeningCard take the same
// lock.
func (t *Table) Winner() *Player {
	t.deckMu.Lock()
	defer t.deckMu.Unlock()

	var winner *Player
	var winnerPoints uint8
	found, tied := false, false
	for _, h := range t.hands {
		switch {
		case h.Points > 21:
			continue
		case !found || h.Points > winnerPoints:
			winner = h.Player
			winnerPoints = h.Points
			found, tied = true, false
		case h.Points == winnerPoints:
			tied = true
		}
	}
	if tied {
		return nil
	}
	return winner
}

// Scoreboard is the record of a finished table.
type Scoreboard struct {
	ID      string
	GameID  string
	Players []*Player
	Winner  *Player
	Hands   TableReport
}

// ScoreboardReport is the wire shape for a finished table.
type ScoreboardReport struct {
	Scoreboard struct {
		ID      string   `json:"id"`
		GameID  string   `json:"game_id"`
		Players []string `json:"players"`
		Winner  string   `json:"winner"`
	} `json:"scoreboard"`
	Hands      TableReport `json:"hands"`
	IsFinished bool        `json:"is_finished"`
}

// Report renders the scoreboard, using "DRAW" as the winner name when there
// is none.
func (s *Scoreboard) Report() ScoreboardReport {
	var rep ScoreboardReport
	rep.Scoreboard.ID = s.ID
	rep.Scoreboard.GameID = s.GameID
	rep.Hands = s.Hands
	rep.IsFinished = true

	winnerName := "DRAW"
	if s.Winner != nil {
		winnerName = s.Winner.Name
	}
	rep.Scoreboard.Winner = winnerName

	names := make([]string, len(s.Players))
	for i, p := range s.Players {
		names[i] = p.Name
	}
	rep.Scoreboard.Players = names
	return rep
}

// Manager is the application's in-memory registry: players, lobbies, tables
// in progress, and finished scoreboards. One Manager instance per dapp
// process; its own mutex serializes every mutation.
type Manager struct {
	mu sync.Mutex

	players     map[string]*Player
	games       []*Game
	tables      map[string]*Table
	scoreboards []*Scoreboard
}

// NewManagerWithGames seeds a fixed roster of n empty lobbies, numbered "1"
// through "n" as a string, the same fixed-slot scheme the source boots
// with.
func NewManagerWithGames(n int) *Manager {
	games := make([]*Game, 0, n)
	for i := 1; i <= n; i++ {
		games = append(games, NewGame(fmt.Sprintf("%d", i)))
	}
	return &Manager{
		players: make(map[string]*Player),
		games:   games,
		tables:  make(map[string]*Table),
	}
}

// AddPlayer registers a new player, rejecting duplicates by ID.
func (m *Manager) AddPlayer(p *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[p.ID]; ok {
		return ErrPlayerRegistered
	}
	m.players[p.ID] = p
	return nil
}

// GetPlayer looks up a registered player by ID.
func (m *Manager) GetPlayer(id string) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

// HasPlayer reports whether a player ID is already registered, used to
// decide whether a player record needs hydrating from disk.
func (m *Manager) HasPlayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.players[id]
	return ok
}

// PlayingTables lists the IDs of every running table playerID currently has
// a hand at.
func (m *Manager) PlayingTables(playerID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, t := range m.tables {
		if t.HasPlayer(playerID) {
			ids = append(ids, id)
		}
	}
	return ids
}

// JoinedGames lists the IDs of every open lobby playerID has joined.
func (m *Manager) JoinedGames(playerID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, g := range m.games {
		if g.HasPlayer(playerID) {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

// GamesReport lists every lobby and how many players have joined it.
type GamesReport struct {
	Games []GameSummary `json:"games"`
}

// GameSummary is one lobby's id and current player count.
type GameSummary struct {
	ID      string `json:"id"`
	Players int    `json:"players"`
}

// Games reports every open lobby.
func (m *Manager) Games() GamesReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]GameSummary, len(m.games))
	for i, g := range m.games {
		out[i] = GameSummary{ID: g.ID, Players: len(g.Players)}
	}
	return GamesReport{Games: out}
}

// JoinGame adds a registered player to a lobby's roster.
func (m *Manager) JoinGame(gameID string, player *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[player.ID]; !ok {
		return ErrPlayerNotFound
	}

	game, err := m.gameByIDLocked(gameID)
	if err != nil {
		return err
	}
	if len(game.Players) >= maxPlayersPerTable {
		return ErrTableFull
	}
	if game.HasPlayer(player.ID) {
		return ErrPlayerRegistered
	}
	game.Players = append(game.Players, player)
	return nil
}

func (m *Manager) gameByIDLocked(id string) (*Game, error) {
	for _, g := range m.games {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, ErrGameNotFound
}

// StartGame removes a lobby from the open-games list and starts a table for
// it, registering the table for future lookups.
func (m *Manager) StartGame(gameID string, nthDecks int, timestamp uint64) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, g := range m.games {
		if g.ID == gameID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrGameNotFound
	}

	game := m.games[idx]
	table, err := game.RoundStart(nthDecks, timestamp)
	if err != nil {
		return nil, err
	}

	m.games = append(m.games[:idx], m.games[idx+1:]...)
	m.tables[table.ID] = table
	return table, nil
}

// GetTable looks up a running table by ID.
func (m *Manager) GetTable(id string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return nil, ErrTableNotFound
	}
	return t, nil
}

// StopGame finishes a table: it scores the round, records a scoreboard, and
// recycles the lobby (cleared of players) back into the open-games list.
func (m *Manager) StopGame(tableID string) (*Scoreboard, error) {
	m.mu.Lock()
	table, ok := m.tables[tableID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrTableNotFound
	}
	delete(m.tables, tableID)
	m.mu.Unlock()

	winner := table.Winner()
	players := make([]*Player, len(table.hands))
	for i, h := range table.hands {
		players[i] = h.Player
	}

	scoreboard := &Scoreboard{
		ID:      table.ID,
		GameID:  table.Game.ID,
		Players: players,
		Winner:  winner,
		Hands:   table.Report(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.scoreboards = append(m.scoreboards, scoreboard)
	table.Game.Players = nil
	m.games = append(m.games, table.Game)
	return scoreboard, nil
}

// Scoreboard looks up a finished table's scoreboard by its table ID.
func (m *Manager) Scoreboard(tableID string) (*Scoreboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scoreboards {
		if s.ID == tableID {
			return s, nil
		}
	}
	return nil, fmt.Errorf("scoreboard not found for table %s", tableID)
}

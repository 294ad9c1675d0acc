package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/Calindra/cartesi-drand/common/log"
	"github.com/Calindra/cartesi-drand/config"
	"github.com/Calindra/cartesi-drand/game"
	"github.com/Calindra/cartesi-drand/rollupio"
)

// nthDecksPerTable is the fixed deck count every table is dealt from. The
// source takes this as a round_start parameter but its one caller always
// passes 2; the "deck_nth" request field it sketches in a comment was never
// wired up.
const nthDecksPerTable = 2

// Handlers dispatches rollup inputs into game.Manager operations and
// produces the reports/relays the surrounding rollup loop sends back out.
type Handlers struct {
	Manager    *game.Manager
	Store      *Store
	Middleware *MiddlewareClient
	Rollup     *rollupio.Client
	Owner      string // lowercase hex address, no 0x prefix
	Log        log.Logger
}

// NewHandlers builds a Handlers. owner is normalized to lowercase hex with
// no 0x prefix so comparisons against a rollup input's msg_sender are
// case-insensitive.
func NewHandlers(manager *game.Manager, store *Store, middleware *MiddlewareClient, rollup *rollupio.Client, owner string, logger log.Logger) *Handlers {
	return &Handlers{
		Manager:    manager,
		Store:      store,
		Middleware: middleware,
		Rollup:     rollup,
		Owner:      normalizeAddress(owner),
		Log:        logger,
	}
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimPrefix(address, "0x"))
}

// Dispatch implements rollupio.Dispatch: decode the envelope, run the
// requested action, report its result if any, and tell the driver whether
// to accept or reject the input. Reject is reserved for a payload that
// cannot even be decoded; a handler error is an application-level error
// (unregistered player, full table, wrong owner, ...) and is surfaced as a
// report with status accept, so the driver keeps advancing.
func (h *Handlers) Dispatch(ctx context.Context, env rollupio.Envelope) string {
	raw, err := env.Data.DecodeHexPayload()
	if err != nil {
		h.Log.Warnw("decoding rollup payload failed", "err", err)
		return rollupio.StatusReject
	}

	report, err := h.handle(ctx, raw, env.Data.Metadata)
	if err != nil {
		h.Log.Warnw("action handling failed", "err", err)
		h.reportError(ctx, err)
		return rollupio.StatusAccept
	}
	if report != nil {
		if err := h.Rollup.Report(ctx, rollupio.EncodeHexPayload(report)); err != nil {
			h.Log.Warnw("reporting action result failed", "err", err)
		}
	}
	return rollupio.StatusAccept
}

func (h *Handlers) reportError(ctx context.Context, handleErr error) {
	payload, err := rollupio.EncodeJSONPayload(map[string]string{"error": handleErr.Error()})
	if err != nil {
		h.Log.Warnw("encoding error report failed", "err", err)
		return
	}
	if err := h.Rollup.Report(ctx, payload); err != nil {
		h.Log.Warnw("reporting action error failed", "err", err)
	}
}

// actionRequest is the payload shape every rollup input carries:
// {"input": {"action": "...", ...action-specific fields}}.
type actionRequest struct {
	Input actionInput `json:"input"`
}

type actionInput struct {
	Action      string `json:"action"`
	Name        string `json:"name,omitempty"`
	GameID      string `json:"game_id,omitempty"`
	TableID     string `json:"table_id,omitempty"`
	Address     string `json:"address,omitempty"`
	PublicKey   string `json:"public_key,omitempty"`
	Period      uint64 `json:"period,omitempty"`
	GenesisTime uint64 `json:"genesis_time,omitempty"`
	SafeSeconds uint64 `json:"safe_seconds,omitempty"`
}

func (h *Handlers) handle(ctx context.Context, raw []byte, metadata *rollupio.Metadata) (json.RawMessage, error) {
	var req actionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	in := req.Input

	switch in.Action {
	case "update_drand":
		return nil, h.updateDrand(ctx, in, metadata)
	case "new_player":
		return h.newPlayer(in, metadata)
	case "join_game":
		return nil, h.joinGame(in, metadata)
	case "show_player":
		return h.showPlayer(in)
	case "show_games":
		return h.showGames()
	case "start_game":
		return nil, h.startGame(ctx, in, metadata)
	case "stop_game":
		return nil, h.stopGame(in)
	case "show_hands":
		return h.showHands(in)
	case "hit":
		return nil, h.hit(ctx, in, metadata)
	case "stand":
		return nil, h.stand(in, metadata)
	default:
		return nil, fmt.Errorf("unknown action %q", in.Action)
	}
}

func requireMetadata(metadata *rollupio.Metadata) (*rollupio.Metadata, error) {
	if metadata == nil {
		return nil, fmt.Errorf("missing input metadata")
	}
	return metadata, nil
}

// updateDrand relays a drand config change to the middleware, but only if
// the input's sender matches the configured game owner address.
func (h *Handlers) updateDrand(ctx context.Context, in actionInput, metadata *rollupio.Metadata) error {
	metadata, err := requireMetadata(metadata)
	if err != nil {
		return err
	}
	if normalizeAddress(metadata.MsgSender) != h.Owner {
		return fmt.Errorf("invalid owner")
	}

	cfg := config.AppConfig{
		DrandPublicKey:   in.PublicKey,
		DrandPeriod:      in.Period,
		DrandGenesisTime: in.GenesisTime,
		SafeSeconds:      in.SafeSeconds,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid drand config: %w", err)
	}
	return h.Middleware.UpdateDrandConfig(ctx, cfg, metadata.MsgSender)
}

type newPlayerReport struct {
	Address     string `json:"address"`
	EncodedName string `json:"encoded_name"`
	Name        string `json:"name"`
}

func (h *Handlers) newPlayer(in actionInput, metadata *rollupio.Metadata) (json.RawMessage, error) {
	metadata, err := requireMetadata(metadata)
	if err != nil {
		return nil, err
	}

	player, err := game.NewPlayerFromAddress(metadata.MsgSender, in.Name)
	if err != nil {
		return nil, err
	}
	if err := h.Manager.AddPlayer(player); err != nil {
		return nil, err
	}
	if err := h.Store.SavePlayer(normalizeAddress(metadata.MsgSender), in.Name); err != nil {
		h.Log.Warnw("persisting new player failed", "err", err)
	}

	return json.Marshal(newPlayerReport{
		Address:     player.ID,
		EncodedName: base58.Encode([]byte(in.Name)),
		Name:        in.Name,
	})
}

// hydratePlayer loads a player record from disk into the in-memory manager
// if it is not already registered there, so a player who registered in an
// earlier machine run can still join or be looked up after a restart.
func (h *Handlers) hydratePlayer(address string) error {
	encoded := game.PlayerIDForAddress(address)
	if h.Manager.HasPlayer(encoded) {
		return nil
	}

	rec, found, err := h.Store.LoadPlayerByAddress(encoded)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	player, err := game.NewPlayerFromAddress(address, rec.Name)
	if err != nil {
		return err
	}
	return h.Manager.AddPlayer(player)
}

func (h *Handlers) joinGame(in actionInput, metadata *rollupio.Metadata) error {
	metadata, err := requireMetadata(metadata)
	if err != nil {
		return err
	}
	if err := h.hydratePlayer(metadata.MsgSender); err != nil {
		return err
	}

	player, err := h.Manager.GetPlayer(game.PlayerIDForAddress(metadata.MsgSender))
	if err != nil {
		return err
	}
	return h.Manager.JoinGame(in.GameID, player)
}

type showPlayerReport struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Joined  []string `json:"joined"`
	Playing []string `json:"playing"`
}

func (h *Handlers) showPlayer(in actionInput) (json.RawMessage, error) {
	if in.Address == "" {
		return nil, fmt.Errorf("missing field address")
	}
	if err := h.hydratePlayer(in.Address); err != nil {
		return nil, err
	}

	id := game.PlayerIDForAddress(in.Address)
	player, err := h.Manager.GetPlayer(id)
	if err != nil {
		return nil, err
	}

	return json.Marshal(showPlayerReport{
		Name:    player.Name,
		Address: normalizeAddress(in.Address),
		Joined:  h.Manager.JoinedGames(id),
		Playing: h.Manager.PlayingTables(id),
	})
}

func (h *Handlers) showGames() (json.RawMessage, error) {
	return json.Marshal(h.Manager.Games())
}

func (h *Handlers) startGame(ctx context.Context, in actionInput, metadata *rollupio.Metadata) error {
	metadata, err := requireMetadata(metadata)
	if err != nil {
		return err
	}

	table, err := h.Manager.StartGame(in.GameID, nthDecksPerTable, metadata.Timestamp)
	if err != nil {
		return err
	}

	seedFor := func(string) (string, error) {
		return h.Middleware.Random(ctx, metadata.Timestamp)
	}
	for i := 0; i < 2; i++ {
		if err := table.DealOpeningCard(metadata.Timestamp, seedFor); err != nil {
			return fmt.Errorf("dealing opening hand: %w", err)
		}
	}
	return nil
}

func (h *Handlers) stopGame(in actionInput) error {
	table, err := h.Manager.GetTable(in.GameID)
	if err != nil {
		return err
	}
	_, err = h.Manager.StopGame(table.ID)
	return err
}

func (h *Handlers) showHands(in actionInput) (json.RawMessage, error) {
	if table, err := h.Manager.GetTable(in.TableID); err == nil {
		return json.Marshal(table.Report())
	}
	scoreboard, err := h.Manager.Scoreboard(in.TableID)
	if err != nil {
		return nil, fmt.Errorf("table or scoreboard not found for %q", in.TableID)
	}
	return json.Marshal(scoreboard.Report())
}

func (h *Handlers) hit(ctx context.Context, in actionInput, metadata *rollupio.Metadata) error {
	metadata, err := requireMetadata(metadata)
	if err != nil {
		return err
	}

	table, err := h.Manager.GetTable(in.TableID)
	if err != nil {
		return err
	}

	seed, err := h.Middleware.Random(ctx, metadata.Timestamp)
	if err != nil {
		return err
	}

	playerID := game.PlayerIDForAddress(metadata.MsgSender)
	if err := table.Hit(playerID, metadata.Timestamp, seed); err != nil {
		return err
	}
	if !table.AnyPlayerCanHit() {
		_, err := h.Manager.StopGame(table.ID)
		return err
	}
	return nil
}

func (h *Handlers) stand(in actionInput, metadata *rollupio.Metadata) error {
	metadata, err := requireMetadata(metadata)
	if err != nil {
		return err
	}

	table, err := h.Manager.GetTable(in.GameID)
	if err != nil {
		return err
	}

	playerID := game.PlayerIDForAddress(metadata.MsgSender)
	if err := table.Stand(playerID, metadata.Timestamp); err != nil {
		return err
	}
	if !table.AnyPlayerCanHit() {
		_, err := h.Manager.StopGame(table.ID)
		return err
	}
	return nil
}

package app_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Calindra/cartesi-drand/app"
	"github.com/Calindra/cartesi-drand/common/log"
	"github.com/Calindra/cartesi-drand/game"
	"github.com/Calindra/cartesi-drand/rollupio"
)

func newTestHandlers(t *testing.T, randomSeed string, owner string) (*app.Handlers, *[]string) {
	t.Helper()

	var reported []string

	middleware := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/random" {
			_, _ = w.Write([]byte(randomSeed))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(middleware.Close)

	rollupHost := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/report" {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			reported = append(reported, body["payload"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rollupHost.Close)

	manager := game.NewManagerWithGames(1)
	store := app.NewStore(t.TempDir())
	h := app.NewHandlers(
		manager,
		store,
		app.NewMiddlewareClient(middleware.URL),
		rollupio.NewClient(rollupHost.URL, log.DefaultLogger()),
		owner,
		log.DefaultLogger(),
	)
	return h, &reported
}

func envelopeFor(t *testing.T, input map[string]interface{}, sender string, timestamp uint64) rollupio.Envelope {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"input": input})
	require.NoError(t, err)
	return rollupio.Envelope{
		RequestType: rollupio.RequestTypeAdvance,
		Data: rollupio.Data{
			Payload: rollupio.EncodeHexPayload(payload),
			Metadata: &rollupio.Metadata{
				MsgSender: sender,
				Timestamp: timestamp,
			},
		},
	}
}

func TestNewPlayerThenShowPlayer(t *testing.T) {
	h, reported := newTestHandlers(t, "ab", "")
	ctx := context.Background()

	status := h.Dispatch(ctx, envelopeFor(t, map[string]interface{}{
		"action": "new_player",
		"name":   "Alice",
	}, "0xABCDEF0000000000000000000000000000000001", 1000))
	require.Equal(t, rollupio.StatusAccept, status)
	require.Len(t, *reported, 1)

	status = h.Dispatch(ctx, envelopeFor(t, map[string]interface{}{
		"action":  "show_player",
		"address": "0xABCDEF0000000000000000000000000000000001",
	}, "0xABCDEF0000000000000000000000000000000001", 1001))
	require.Equal(t, rollupio.StatusAccept, status)
	require.Len(t, *reported, 2)

	raw, err := hex.DecodeString((*reported)[1][2:])
	require.NoError(t, err)

	var report struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))
	require.Equal(t, "Alice", report.Name)
}

func TestJoinAndStartGameMovesLobbyToTable(t *testing.T) {
	h, _ := newTestHandlers(t, "deadbeef", "")
	ctx := context.Background()

	for _, sender := range []string{"0xAAAA000000000000000000000000000000000A", "0xBBBB000000000000000000000000000000000B"} {
		status := h.Dispatch(ctx, envelopeFor(t, map[string]interface{}{
			"action": "new_player",
			"name":   "Player-" + sender[2:6],
		}, sender, 1))
		require.Equal(t, rollupio.StatusAccept, status)

		status = h.Dispatch(ctx, envelopeFor(t, map[string]interface{}{
			"action":  "join_game",
			"game_id": "1",
		}, sender, 2))
		require.Equal(t, rollupio.StatusAccept, status)
	}

	status := h.Dispatch(ctx, envelopeFor(t, map[string]interface{}{
		"action":  "start_game",
		"game_id": "1",
	}, "0xAAAA000000000000000000000000000000000A", 3))
	require.Equal(t, rollupio.StatusAccept, status)

	report := h.Manager.Games()
	require.Len(t, report.Games, 0, "lobby moves out of the open-games list while its table is running")
}

func TestUpdateDrandRejectsNonOwner(t *testing.T) {
	h, reported := newTestHandlers(t, "00", "deadbeef")
	ctx := context.Background()

	status := h.Dispatch(ctx, envelopeFor(t, map[string]interface{}{
		"action":       "update_drand",
		"public_key":   "aa",
		"period":       float64(3),
		"genesis_time": float64(100),
		"safe_seconds": float64(5),
	}, "0xNOTOWNER00000000000000000000000000000", 5))
	require.Equal(t, rollupio.StatusAccept, status, "an application error is reported, not rejected")
	require.Len(t, *reported, 1, "the invalid-owner error should be surfaced as a report")
}

package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	bls "github.com/drand/kyber-bls12381"
	signBls "github.com/drand/kyber/sign/bls"
	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/Calindra/cartesi-drand/common/log"
	"github.com/Calindra/cartesi-drand/config"
	"github.com/Calindra/cartesi-drand/crypto"
	"github.com/Calindra/cartesi-drand/httpapi"
	"github.com/Calindra/cartesi-drand/rollupio"
	"github.com/Calindra/cartesi-drand/state"
)

func newServer(t *testing.T, rollupHostURL string) *httptest.Server {
	t.Helper()
	_, ts := newServerHandle(t, rollupHostURL)
	return ts
}

// newServerHandle is like newServer but also returns the underlying
// *httpapi.Server, for tests that need to drive it directly (e.g. the
// background poll dispatcher, which isn't reachable through any HTTP route).
func newServerHandle(t *testing.T, rollupHostURL string) (*httpapi.Server, *httptest.Server) {
	t.Helper()

	pairing := bls.NewBLS12381SuiteWithDST(
		[]byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"),
		[]byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"),
	)
	_ = signBls.NewSchemeOnG1(pairing)
	secret := pairing.G2().Scalar().Pick(random.New())
	public := pairing.G2().Point().Mul(secret, nil)
	rawPub, err := public.MarshalBinary()
	require.NoError(t, err)

	cfg := config.AppConfig{
		DrandPublicKey:   hexString(rawPub),
		DrandPeriod:      3,
		DrandGenesisTime: 1677685200,
		SafeSeconds:      5,
	}
	mgr, err := state.NewManager(cfg, crypto.NewVerifier(), log.DefaultLogger())
	require.NoError(t, err)

	rollup := rollupio.NewClient(rollupHostURL, log.DefaultLogger())
	server := httpapi.NewServer(mgr, rollup, t.TempDir()+"/drand.config.json", "", log.DefaultLogger())
	return server, httptest.NewServer(server.Router())
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func TestHealth(t *testing.T) {
	hostMux := http.NewServeMux()
	host := httptest.NewServer(hostMux)
	defer host.Close()

	srv := newServer(t, host.URL)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFinishIdleWhenHostIdle(t *testing.T) {
	hostMux := http.NewServeMux()
	hostMux.HandleFunc("/finish", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	host := httptest.NewServer(hostMux)
	defer host.Close()

	srv := newServer(t, host.URL)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/finish", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestFinishReturnsOpaqueInputInline(t *testing.T) {
	env := rollupio.Envelope{
		RequestType: rollupio.RequestTypeAdvance,
		Data:        rollupio.Data{Payload: rollupio.EncodeHexPayload([]byte("hello"))},
	}

	hostMux := http.NewServeMux()
	hostMux.HandleFunc("/finish", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(env)
	})
	host := httptest.NewServer(hostMux)
	defer host.Close()

	srv := newServer(t, host.URL)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/finish", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got rollupio.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, env.Data.Payload, got.Data.Payload)
}

func TestPendingBeaconInspectSwallowedAndReported(t *testing.T) {
	reported := make(chan string, 1)

	hostMux := http.NewServeMux()
	hostMux.HandleFunc("/finish", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rollupio.Envelope{
			RequestType: rollupio.RequestTypeInspect,
			Data:        rollupio.Data{Payload: rollupio.EncodeHexPayload([]byte("pendingdrandbeacon"))},
		})
	})
	hostMux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		reported <- body["payload"]
		w.WriteHeader(http.StatusOK)
	})
	host := httptest.NewServer(hostMux)
	defer host.Close()

	srv := newServer(t, host.URL)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/finish", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case payload := <-reported:
		require.Equal(t, "0x0", payload)
	default:
		t.Fatal("expected a report to be posted for the pending beacon inspect")
	}
}

func TestRandomDefersWithNoBeacon(t *testing.T) {
	hostMux := http.NewServeMux()
	host := httptest.NewServer(hostMux)
	defer host.Close()

	srv := newServer(t, host.URL)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/random?timestamp=10")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHoldThenHoldAgain(t *testing.T) {
	hostMux := http.NewServeMux()
	host := httptest.NewServer(hostMux)
	defer host.Close()

	srv := newServer(t, host.URL)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/hold", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/hold", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestPollDispatchBuffersOpaqueInputForFinishDrain(t *testing.T) {
	hostMux := http.NewServeMux()
	host := httptest.NewServer(hostMux)
	defer host.Close()

	server, srv := newServerHandle(t, host.URL)
	defer srv.Close()

	env := rollupio.Envelope{
		RequestType: rollupio.RequestTypeAdvance,
		Data:        rollupio.Data{Payload: rollupio.EncodeHexPayload([]byte("buffered"))},
	}

	status := server.PollDispatch(context.Background(), env)
	require.Equal(t, rollupio.StatusAccept, status)

	resp, err := http.Post(srv.URL+"/finish", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got rollupio.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, env.Data.Payload, got.Data.Payload)
}

func TestUpdateDrandConfigRejectsUnauthorized(t *testing.T) {
	hostMux := http.NewServeMux()
	host := httptest.NewServer(hostMux)
	defer host.Close()

	pairing := bls.NewBLS12381SuiteWithDST(
		[]byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"),
		[]byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"),
	)
	secret := pairing.G2().Scalar().Pick(random.New())
	public := pairing.G2().Point().Mul(secret, nil)
	rawPub, _ := public.MarshalBinary()

	mgr, err := state.NewManager(config.AppConfig{
		DrandPublicKey:   hexString(rawPub),
		DrandPeriod:      3,
		DrandGenesisTime: 1677685200,
		SafeSeconds:      5,
	}, crypto.NewVerifier(), log.DefaultLogger())
	require.NoError(t, err)

	rollup := rollupio.NewClient(host.URL, log.DefaultLogger())
	srv := httpapi.NewServer(mgr, rollup, t.TempDir()+"/drand.config.json", "deadbeef", log.DefaultLogger())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/update_drand_config", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

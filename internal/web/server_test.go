package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beethovenx/vegov/internal/config"
	"github.com/beethovenx/vegov/internal/crosschain"
	"github.com/beethovenx/vegov/internal/governor"
	"github.com/beethovenx/vegov/internal/logger"
	"github.com/beethovenx/vegov/internal/metrics"
	"github.com/beethovenx/vegov/internal/state"
	"github.com/beethovenx/vegov/internal/types"
	"github.com/beethovenx/vegov/internal/voting"
)

var (
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testNow     = time.Unix(1_700_000_000, 0)
)

func gaugeAddr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n*1_000 + 5))
}

type fakePools struct {
	pools []types.VotingPool
}

func (f *fakePools) GetVotingPools(context.Context, common.Address) ([]types.VotingPool, error) {
	return f.pools, nil
}

func (f *fakePools) GetExpiredGauges(context.Context) ([]string, error) {
	return nil, nil
}

type fakeSync struct {
	snap    crosschain.Snapshot
	loaded  bool
	synced  []uint64
	syncErr error
}

func (f *fakeSync) Last() (crosschain.Snapshot, bool) { return f.snap, f.loaded }

func (f *fakeSync) Sync(_ context.Context, chainID uint64) (*ethtypes.Transaction, error) {
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	f.synced = append(f.synced, chainID)
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: chainID}), nil
}

type fakeStore struct{ err error }

func (f fakeStore) Ping(context.Context) error { return f.err }

type testServer struct {
	*httptest.Server
	session *voting.Session
	sync    *fakeSync
	txLog   *state.TxLog
}

func newTestServer(t *testing.T, store Pinger) *testServer {
	t.Helper()
	pools := &fakePools{pools: []types.VotingPool{
		{ID: "a", Network: 1, Gauge: types.Gauge{Address: gaugeAddr(1)}, UserVotes: "0"},
		{ID: "b", Network: 1, Gauge: types.Gauge{Address: gaugeAddr(2)}, UserVotes: "2500"},
	}}
	session := voting.NewSession(func() time.Time { return testNow })
	gov, err := governor.New(governor.Config{Account: testAccount, Pools: pools, Session: session})
	require.NoError(t, err)
	require.NoError(t, gov.Refresh(context.Background()))

	kv, err := state.NewBadgerStore(state.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	txLog := state.NewTxLog(kv)

	sync := &fakeSync{}
	ws := NewWebServer(Options{
		Account:  testAccount,
		Networks: config.DefaultNetworks(),
		Governor: gov,
		Sync:     sync,
		TxLog:    txLog,
		Metrics:  metrics.New(),
		Store:    store,
	})
	srv := httptest.NewServer(ws.Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, session: session, sync: sync, txLog: txLog}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, fakeStore{})
	status, body := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body["status"])

	degraded := newTestServer(t, fakeStore{err: errors.New("connection refused")})
	status, body = degraded.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "DEGRADED", body["status"])
}

func TestVotingSessionFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.do(t, http.MethodGet, "/api/voting/session", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{gaugeAddr(2).Hex(): "25"}, body["request"])

	status, _ = ts.do(t, http.MethodPost, "/api/voting/toggle/"+gaugeAddr(1).Hex(), "")
	require.Equal(t, http.StatusOK, status)

	status, body = ts.do(t, http.MethodPut, "/api/voting/weight/"+gaugeAddr(1).Hex(), `{"weight":"30"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_voting_request_valid"])

	status, body = ts.do(t, http.MethodGet, "/api/voting/confirmed", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])

	status, body = ts.do(t, http.MethodGet, "/api/voting/plan", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["steps"], 1)

	status, _ = ts.do(t, http.MethodPost, "/api/voting/reset", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, ts.session.Request())

	status, _ = ts.do(t, http.MethodPost, "/api/voting/load", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "25", ts.session.Request()[gaugeAddr(2)])
}

func TestVotingErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	status, _ := ts.do(t, http.MethodPost, "/api/voting/toggle/not-an-address", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodPost, "/api/voting/toggle/"+gaugeAddr(9).Hex(), "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, http.MethodPut, "/api/voting/weight/"+gaugeAddr(1).Hex(), `{"weight":"30"}`)
	assert.Equal(t, http.StatusBadRequest, status, "gauge is not selected")

	status, _ = ts.do(t, http.MethodPut, "/api/voting/weight/"+gaugeAddr(2).Hex(), `{"weight":"101"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := ts.do(t, http.MethodPost, "/api/voting/submit", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, governor.ErrNoVoteDeps.Error(), body["message"])
}

func TestSyncEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	status, _ := ts.do(t, http.MethodGet, "/api/sync", "")
	assert.Equal(t, http.StatusNotFound, status)

	ts.sync.loaded = true
	ts.sync.snap = crosschain.Snapshot{MainnetVeBal: "12.5"}
	status, body := ts.do(t, http.MethodGet, "/api/sync", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "12.5", body["mainnetVeBalBalance"])

	status, body = ts.do(t, http.MethodPost, "/api/sync/arbitrum", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 42161, body["network"])

	status, _ = ts.do(t, http.MethodPost, "/api/sync/137", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []uint64{42161, 137}, ts.sync.synced)

	status, _ = ts.do(t, http.MethodPost, "/api/sync/solana", "")
	assert.Equal(t, http.StatusBadRequest, status)

	ts.sync.syncErr = crosschain.ErrSyncNotSupported
	status, _ = ts.do(t, http.MethodPost, "/api/sync/mainnet", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTxLogEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, ts.txLog.Record(ctx, types.TxLogEntry{
			Account:   testAccount.Hex(),
			Action:    types.TxActionVote,
			Summary:   "Voting on 1 pools",
			TxHash:    common.BigToHash(big.NewInt(int64(i + 1))).Hex(),
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		}))
	}

	status, body := ts.do(t, http.MethodGet, "/api/txlog?limit=2", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])
	assert.Len(t, body["entries"], 2)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type failingTxLog struct{}

func (failingTxLog) List(context.Context, string) ([]types.TxLogEntry, error) {
	return nil, errors.New("store offline")
}

func TestServerLogsThroughInitializedLogger(t *testing.T) {
	previous, level := logger.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		logger.Logger = previous
		zerolog.SetGlobalLevel(level)
	})

	var buf bytes.Buffer
	logger.InitializeWithWriter("info", &buf)

	gov, err := governor.New(governor.Config{Account: testAccount, Pools: &fakePools{}, Session: voting.NewSession(nil)})
	require.NoError(t, err)
	ws := NewWebServer(Options{Account: testAccount, Governor: gov, TxLog: failingTxLog{}})

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/txlog", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "Failed to list transaction log")
	assert.Contains(t, buf.String(), `"component":"web_server"`)
}

package cycle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/replicate"
	"github.com/Pjt727/classy-sync/internal/store"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) FetchAll(ctx context.Context, req model.AllRequest) (model.AllResultPayload, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.AllResultPayload), args.Error(1)
}

func (m *mockTransport) FetchSelect(ctx context.Context, req model.SelectRequest) (model.SelectResultPayload, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.SelectResultPayload), args.Error(1)
}

func newReplicator(t *testing.T) *replicate.Replicator {
	t.Helper()
	r, err := replicate.Open(replicate.Options{
		Backend:    store.BackendSQLite3,
		Path:       filepath.Join(t.TempDir(), "classy.db"),
		Strictness: replicate.Strict,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func allRequest(lastSync uint64) model.AllRequest {
	return model.AllRequest{LastSync: lastSync, MaxRecords: model.MaxRecords(model.DefaultMaxRecords)}
}

func school(id, name string) model.ChangeRecord {
	return model.ChangeRecord{
		Table:         model.TableSchools,
		Action:        model.ActionInsert,
		KeyFields:     model.Fields{model.F("id", model.Text(id))},
		ChangedFields: model.Fields{model.F("name", model.Text(name))},
	}
}

func TestRun_AllModeFollowsHasMore(t *testing.T) {
	ctx := context.Background()
	r := newReplicator(t)
	require.NoError(t, r.SetResources(ctx, model.Everything{}))

	transport := new(mockTransport)
	transport.On("FetchAll", mock.Anything, allRequest(0)).Return(model.AllResultPayload{
		NewWatermark: 5,
		Changes:      []model.ChangeRecord{school("marist", "Marist College")},
		HasMore:      true,
	}, nil).Once()
	transport.On("FetchAll", mock.Anything, allRequest(5)).Return(model.AllResultPayload{
		NewWatermark: 9,
		Changes:      []model.ChangeRecord{school("temple", "Temple University")},
	}, nil).Once()

	runner := NewRunner(r, transport, WithIDGenerator(NewFixedGenerator("cycle-1")))
	res, err := runner.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{ID: "cycle-1", Rounds: 2, Changes: 2}, res)
	transport.AssertExpectations(t)

	req, err := r.GenerateNextRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, allRequest(9), req)
}

func TestRun_SelectModeEchoesRequest(t *testing.T) {
	ctx := context.Background()
	r := newReplicator(t)
	require.NoError(t, r.SetResources(ctx, model.Selection{"marist": model.AllSchoolData()}))

	first, err := r.GenerateNextRequest(ctx)
	require.NoError(t, err)

	transport := new(mockTransport)
	transport.On("FetchSelect", mock.Anything, first).Return(model.SelectResultPayload{
		UpdatedWatermarks: map[string]model.ScopeEntry{"marist": model.SchoolEntry(12)},
		Changes:           []model.ChangeRecord{school("marist", "Marist College")},
	}, nil).Once()

	res, err := NewRunner(r, transport).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 1, res.Changes)
	assert.False(t, res.HasMore)
	assert.NotEmpty(t, res.ID)
	transport.AssertExpectations(t)

	next, err := r.GenerateNextRequest(ctx)
	require.NoError(t, err)
	sel, ok := next.(model.SelectRequest)
	require.True(t, ok)
	assert.Equal(t, model.SchoolEntry(12), sel.Schools["marist"])
}

func TestRun_TransportErrorLeavesWatermark(t *testing.T) {
	ctx := context.Background()
	r := newReplicator(t)
	require.NoError(t, r.SetResources(ctx, model.Everything{}))

	transport := new(mockTransport)
	transport.On("FetchAll", mock.Anything, allRequest(0)).
		Return(model.AllResultPayload{}, errors.New("connection reset")).Once()

	res, err := NewRunner(r, transport).Run(ctx)
	require.Error(t, err)
	assert.True(t, syncerr.IsTransport(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 0, res.Rounds)

	req, err := r.GenerateNextRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, allRequest(0), req)
}

func TestRun_ApplyErrorStopsRun(t *testing.T) {
	ctx := context.Background()
	r := newReplicator(t)
	require.NoError(t, r.SetResources(ctx, model.Everything{}))

	transport := new(mockTransport)
	transport.On("FetchAll", mock.Anything, allRequest(0)).Return(model.AllResultPayload{
		NewWatermark: 4,
		Changes: []model.ChangeRecord{{
			Table:     model.TableSchools,
			Action:    model.ActionDelete,
			KeyFields: model.Fields{model.F("id", model.Text("nowhere"))},
		}},
		HasMore: true,
	}, nil).Once()

	_, err := NewRunner(r, transport).Run(ctx)
	require.Error(t, err)
	assert.True(t, syncerr.IsRowCountMismatch(err))
	transport.AssertNumberOfCalls(t, "FetchAll", 1)
}

func TestRun_StopsAtMaxRounds(t *testing.T) {
	ctx := context.Background()
	r := newReplicator(t)
	require.NoError(t, r.SetResources(ctx, model.Everything{}))

	transport := new(mockTransport)
	transport.On("FetchAll", mock.Anything, allRequest(0)).
		Return(model.AllResultPayload{NewWatermark: 1, HasMore: true}, nil).Once()
	transport.On("FetchAll", mock.Anything, allRequest(1)).
		Return(model.AllResultPayload{NewWatermark: 2, HasMore: true}, nil).Once()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	res, err := NewRunner(r, transport, WithMaxRounds(2), WithLogger(logger)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)
	assert.True(t, res.HasMore)
	assert.Contains(t, logs.String(), "round limit reached")
	transport.AssertExpectations(t)
}

func TestRun_NoStrategy(t *testing.T) {
	r := newReplicator(t)
	transport := new(mockTransport)

	_, err := NewRunner(r, transport).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrNoStrategy)
	transport.AssertNotCalled(t, "FetchAll", mock.Anything, mock.Anything)
}

func TestRun_CanceledContext(t *testing.T) {
	r := newReplicator(t)
	require.NoError(t, r.SetResources(context.Background(), model.Everything{}))
	transport := new(mockTransport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(r, transport).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	transport.AssertNotCalled(t, "FetchAll", mock.Anything, mock.Anything)
}

func TestRun_LogsCycleID(t *testing.T) {
	ctx := context.Background()
	r := newReplicator(t)
	require.NoError(t, r.SetResources(ctx, model.Everything{}))

	transport := new(mockTransport)
	transport.On("FetchAll", mock.Anything, allRequest(0)).
		Return(model.AllResultPayload{NewWatermark: 1}, nil).Once()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	_, err := NewRunner(r, transport,
		WithLogger(logger),
		WithIDGenerator(NewFixedGenerator("0192f0c1-aaaa-7000-8000-000000000001")),
	).Run(ctx)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "cycle=0192f0c1-aaaa-7000-8000-000000000001")
}

func TestTransportError_KeepsClassifiedErrors(t *testing.T) {
	classified := syncerr.InputValidation("bad request")
	assert.Same(t, classified, transportError(classified))

	wrapped := transportError(errors.New("timeout"))
	assert.True(t, syncerr.IsTransport(wrapped))
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14])
}

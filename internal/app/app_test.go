package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbridge/internal/adapters/arena"
	"go.trai.ch/kbridge/internal/adapters/telemetry"
	"go.trai.ch/kbridge/internal/adapters/telemetry/progrock"
	"go.trai.ch/kbridge/internal/adapters/transport/inproc"
	"go.trai.ch/kbridge/internal/app"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/kbridge/internal/core/ports/mocks"
	"go.trai.ch/kbridge/internal/engine/canonical"
	"go.trai.ch/kbridge/internal/engine/dispatcher"
	"go.trai.ch/kbridge/internal/engine/objectcache"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	loader   *mocks.MockConfigLoader
	launcher *mocks.MockWorkerLauncher
	logger   *mocks.MockLogger
	cfg      *domain.Config
	out      *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	logger.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()

	return &fixture{
		loader:   mocks.NewMockConfigLoader(ctrl),
		launcher: mocks.NewMockWorkerLauncher(ctrl),
		logger:   logger,
		cfg:      domain.DefaultConfig(),
		out:      &bytes.Buffer{},
	}
}

func (f *fixture) app(tel ports.Telemetry) *app.App {
	if tel == nil {
		tel = telemetry.NewNoOp()
	}
	return app.New(f.loader, f.logger, f.cfg, arena.NewBackend(arena.NewArena()), tel, f.launcher).
		WithOutput(f.out)
}

func bracketScenario() *domain.Scenario {
	return &domain.Scenario{
		Name: "bracket",
		Rounds: []domain.Round{
			{Calls: []domain.ScenarioCall{
				{Name: "plate", Function: "shapes.box", Inputs: map[string]any{"width": 2, "height": 1, "depth": 1}},
				{Name: "vol", Function: "measure.volume", Inputs: map[string]any{"shape": "$plate"}},
				{Name: "copies", Function: "patterns.array", Inputs: map[string]any{"shape": "$plate", "count": 2}},
				{Name: "u", Function: "booleans.union", Inputs: map[string]any{"shapes": []any{"$plate", "$copies"}}},
				{Name: "total", Function: "measure.volume", Inputs: map[string]any{"shape": "$u"}},
			}},
			{Calls: []domain.ScenarioCall{
				{Name: "plate", Function: "shapes.box", Inputs: map[string]any{"width": 2, "height": 1, "depth": 1}},
				{Function: "measure.volume", Inputs: map[string]any{"shape": "$plate"}},
			}},
		},
	}
}

func TestApp_Run_InProcess(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().LoadScenario("bracket.yaml").Return(bracketScenario(), nil)
	recorder := progrock.New()

	report, err := f.app(recorder).Run(context.Background(), "bracket.yaml", app.RunOptions{})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 7)
	assert.Zero(t, report.Failures())

	ref, ok := domain.AsHandleReference(report.Outcomes[0].Result)
	require.True(t, ok)
	assert.Equal(t, arena.Kind, ref.Kind)

	assert.InDelta(t, 2.0, report.Outcomes[1].Result, 1e-9)
	copies, ok := report.Outcomes[2].Result.([]any)
	require.True(t, ok)
	assert.Len(t, copies, 2)
	assert.InDelta(t, 6.0, report.Outcomes[4].Result, 1e-9)

	// The second round reuses the first round's results.
	assert.Equal(t, report.Outcomes[0].Result, report.Outcomes[5].Result)
	require.NotNil(t, report.Cache)
	assert.Equal(t, uint64(2), report.Cache.Hits)
	assert.Equal(t, uint64(5), report.Cache.Misses)
	assert.Equal(t, 4, report.Cache.Handles)

	require.NotNil(t, report.Telemetry)
	assert.Equal(t, 7, report.Telemetry.Calls)
	assert.Equal(t, 2, report.Telemetry.Cached)

	assert.Contains(t, f.out.String(), "scenario bracket")
	assert.Contains(t, f.out.String(), "booleans.union")
	assert.Contains(t, f.out.String(), "2 hits, 5 misses")
}

func TestApp_Run_Repeat(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().LoadScenario("bracket.yaml").Return(bracketScenario(), nil)

	report, err := f.app(nil).Run(context.Background(), "bracket.yaml", app.RunOptions{Repeat: 2, Flush: true})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 14)
	assert.Equal(t, 4, report.Outcomes[len(report.Outcomes)-1].Round)
	assert.Zero(t, report.Failures())

	// Results unused in the second round were swept before the third.
	assert.Equal(t, uint64(6), report.Cache.Hits)
	assert.Equal(t, uint64(8), report.Cache.Misses)
	assert.Equal(t, uint64(1), report.Cache.Flushes)
	assert.Zero(t, report.Cache.Entries)
}

func TestApp_Run_StaleReference(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().LoadScenario("stale.yaml").Return(&domain.Scenario{
		Name: "stale",
		Rounds: []domain.Round{
			{Calls: []domain.ScenarioCall{
				{Name: "b", Function: "shapes.box", Inputs: map[string]any{"width": 1, "height": 1, "depth": 1}},
			}},
			{Calls: []domain.ScenarioCall{{Function: "shapes.sphere", Inputs: map[string]any{"radius": 1}}}},
			{Calls: []domain.ScenarioCall{{Function: "shapes.sphere", Inputs: map[string]any{"radius": 1}}}},
			{Calls: []domain.ScenarioCall{
				{Name: "moved", Function: "transforms.translate", Inputs: map[string]any{"shape": "$b", "offset": []any{1, 0, 0}}},
				{Function: "measure.volume", Inputs: map[string]any{"shape": "$moved"}},
				{Function: "shapes.sphere", Inputs: map[string]any{"radius": 1}},
			}},
		},
	}, nil)

	report, err := f.app(nil).Run(context.Background(), "stale.yaml", app.RunOptions{})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 6)
	assert.Equal(t, 2, report.Failures())

	moved := report.Outcomes[3]
	assert.Contains(t, moved.Error, "no longer cached")
	assert.Contains(t, moved.Error, "remote call failed")

	dependent := report.Outcomes[4]
	assert.Contains(t, dependent.Error, "depends on failed call $moved")

	assert.False(t, report.Outcomes[5].Failed())
	assert.Contains(t, f.out.String(), "failures  2")
}

func TestApp_Run_KernelFailure(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().LoadScenario("fail.yaml").Return(&domain.Scenario{
		Name: "fail",
		Rounds: []domain.Round{{Calls: []domain.ScenarioCall{
			{Function: "debug.fail", Inputs: map[string]any{"message": "kernel exploded"}},
			{Function: "shapes.cone"},
			{Function: "version"},
		}}},
	}, nil)

	report, err := f.app(nil).Run(context.Background(), "fail.yaml", app.RunOptions{})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assert.Contains(t, report.Outcomes[0].Error, "kernel exploded")
	assert.Contains(t, report.Outcomes[0].Error, "kernel computation failed")
	assert.Contains(t, report.Outcomes[1].Error, "unknown kernel function")
	assert.Equal(t, arena.Version, report.Outcomes[2].Result)
}

func TestApp_Run_Process(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().LoadScenario("bracket.yaml").Return(bracketScenario(), nil)

	callerEnd, workerEnd := inproc.Pipe()
	backend := arena.NewBackend(arena.NewArena())
	worker := dispatcher.New(workerEnd, backend,
		objectcache.New(canonical.NewHasher(domain.DefaultTransientField), backend.Handles()))

	served := make(chan error, 1)
	go func() { served <- worker.Serve(context.Background()) }()

	f.launcher.EXPECT().Launch(gomock.Any(), []string{"kbridge-test", "worker"}).Return(callerEnd, nil)

	report, err := f.app(nil).WithWorkerCommand("kbridge-test", "worker").
		Run(context.Background(), "bracket.yaml", app.RunOptions{Process: true})
	require.NoError(t, err)
	require.NoError(t, <-served)

	require.Len(t, report.Outcomes, 7)
	assert.Zero(t, report.Failures())
	assert.Nil(t, report.Cache)
	assert.Equal(t, uint64(2), worker.Cache().Stats().Hits)
}

func TestApp_Run_WorkerGoesAway(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().LoadScenario("bracket.yaml").Return(bracketScenario(), nil)

	callerEnd, workerEnd := inproc.Pipe()
	require.NoError(t, workerEnd.Close())
	f.launcher.EXPECT().Launch(gomock.Any(), gomock.Any()).Return(callerEnd, nil)

	_, err := f.app(nil).Run(context.Background(), "bracket.yaml", app.RunOptions{Process: true})
	require.ErrorIs(t, err, domain.ErrTransportClosed)
}

func TestApp_Run_Errors(t *testing.T) {
	t.Run("scenario", func(t *testing.T) {
		f := newFixture(t)
		f.loader.EXPECT().LoadScenario("missing.yaml").Return(nil, domain.ErrInvalidScenario)

		_, err := f.app(nil).Run(context.Background(), "missing.yaml", app.RunOptions{})
		require.ErrorIs(t, err, domain.ErrInvalidScenario)
	})

	t.Run("launch", func(t *testing.T) {
		f := newFixture(t)
		f.loader.EXPECT().LoadScenario("bracket.yaml").Return(bracketScenario(), nil)
		f.launcher.EXPECT().Launch(gomock.Any(), gomock.Any()).Return(nil, assert.AnError)

		_, err := f.app(nil).Run(context.Background(), "bracket.yaml", app.RunOptions{Process: true})
		require.ErrorIs(t, err, assert.AnError)
	})
}

func TestApp_ServeWorker(t *testing.T) {
	f := newFixture(t)
	in := strings.Join([]string{
		`{"id":"c-1","action":{"functionName":"shapes.box","inputs":{"width":1,"height":2,"depth":3}}}`,
		`{"id":"c-2","action":{"functionName":"shapes.box","inputs":{"depth":3,"height":2,"width":1}}}`,
		`{"id":"c-3","action":{"functionName":"flushCache","inputs":{}}}`,
		"",
	}, "\n")
	var out bytes.Buffer

	err := f.app(nil).ServeWorker(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)

	var msgs []domain.Message
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var msg domain.Message
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		msgs = append(msgs, msg)
	}

	require.Len(t, msgs, 7)
	assert.Equal(t, domain.SignalInitialised, msgs[0].Signal)
	assert.Equal(t, domain.SignalBusy, msgs[1].Signal)
	assert.Equal(t, "c-1", msgs[2].ID)
	assert.Equal(t, domain.SignalBusy, msgs[3].Signal)
	assert.Equal(t, "c-2", msgs[4].ID)
	assert.Equal(t, msgs[2].Result, msgs[4].Result)
	assert.Equal(t, "c-3", msgs[6].ID)
	assert.Equal(t, map[string]any{}, msgs[6].Result)
}

func TestApp_ServeWorker_Journal(t *testing.T) {
	f := newFixture(t)
	f.cfg.Journal = domain.JournalConfig{Driver: domain.JournalSQLite, Path: filepath.Join(t.TempDir(), "keys.db")}
	in := `{"id":"c-1","action":{"functionName":"shapes.sphere","inputs":{"radius":2}}}` + "\n"

	require.NoError(t, f.app(nil).ServeWorker(context.Background(), strings.NewReader(in), &bytes.Buffer{}))
	assert.FileExists(t, f.cfg.Journal.Path)
}

func TestApp_Hash(t *testing.T) {
	f := newFixture(t)
	args := domain.CallArguments{
		FunctionName: "shapes.sphere",
		Inputs:       map[string]any{"radius": 5, "ptr": 4096},
	}
	f.loader.EXPECT().LoadCall("call.yaml").Return(args, nil)

	key, err := f.app(nil).Hash("call.yaml")
	require.NoError(t, err)

	want, err := canonical.NewHasher(domain.DefaultTransientField).Key(domain.CallArguments{
		FunctionName: "shapes.sphere",
		Inputs:       map[string]any{"radius": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, want, key)
	assert.True(t, strings.HasPrefix(f.out.String(), key.String()+"  "))
	assert.NotContains(t, f.out.String(), "4096")
}

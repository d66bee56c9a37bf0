package commands_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbridge/cmd/kbridge/commands"
	"go.trai.ch/kbridge/internal/adapters/arena"
	"go.trai.ch/kbridge/internal/adapters/telemetry"
	"go.trai.ch/kbridge/internal/app"
	"go.trai.ch/kbridge/internal/build"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

type harness struct {
	loader   *mocks.MockConfigLoader
	launcher *mocks.MockWorkerLauncher
	out      *bytes.Buffer
	cli      *commands.CLI
}

func newHarness(t *testing.T, in string) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	logger.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()

	h := &harness{
		loader:   mocks.NewMockConfigLoader(ctrl),
		launcher: mocks.NewMockWorkerLauncher(ctrl),
		out:      &bytes.Buffer{},
	}
	a := app.New(h.loader, logger, domain.DefaultConfig(),
		arena.NewBackend(arena.NewArena()), telemetry.NewNoOp(), h.launcher).
		WithOutput(h.out)

	h.cli = commands.New(a)
	h.cli.SetIO(strings.NewReader(in), h.out)
	return h
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t, "")
	h.loader.EXPECT().LoadScenario("plate.yaml").Return(&domain.Scenario{
		Name: "plate",
		Rounds: []domain.Round{{Calls: []domain.ScenarioCall{
			{Name: "plate", Function: "shapes.box", Inputs: map[string]any{"width": 1, "height": 1, "depth": 1}},
		}}},
	}, nil).Times(1)

	h.cli.SetArgs([]string{"run", "plate.yaml", "--repeat", "3"})
	require.NoError(t, h.cli.Execute(context.Background()))

	out := h.out.String()
	assert.Contains(t, out, "scenario plate")
	assert.Contains(t, out, "2 hits, 1 misses")
}

func TestRun_NoScenario(t *testing.T) {
	h := newHarness(t, "")

	h.cli.SetArgs([]string{"run"})
	require.NoError(t, h.cli.Execute(context.Background()))
	assert.Contains(t, h.out.String(), "Usage:")
}

func TestRun_LoadError(t *testing.T) {
	h := newHarness(t, "")
	h.loader.EXPECT().LoadScenario("broken.yaml").Return(nil, domain.ErrInvalidScenario)

	h.cli.SetArgs([]string{"run", "broken.yaml"})
	err := h.cli.Execute(context.Background())
	require.ErrorIs(t, err, domain.ErrInvalidScenario)
}

func TestWorker(t *testing.T) {
	h := newHarness(t, `{"id":"c-1","action":{"functionName":"version","inputs":{}}}`+"\n")

	h.cli.SetArgs([]string{"worker"})
	require.NoError(t, h.cli.Execute(context.Background()))

	assert.Equal(t,
		`"initialised"`+"\n"+`"busy"`+"\n"+`{"id":"c-1","result":"arena/1"}`+"\n",
		h.out.String())
}

func TestHash(t *testing.T) {
	h := newHarness(t, "")
	h.loader.EXPECT().LoadCall("call.yaml").Return(domain.CallArguments{
		FunctionName: "shapes.box",
		Inputs:       map[string]any{"width": 1},
	}, nil)

	h.cli.SetArgs([]string{"hash", "call.yaml"})
	require.NoError(t, h.cli.Execute(context.Background()))
	assert.Contains(t, h.out.String(), "shapes.box")

	h.cli.SetArgs([]string{"hash"})
	require.Error(t, h.cli.Execute(context.Background()))
}

func TestVersion(t *testing.T) {
	h := newHarness(t, "")

	h.cli.SetArgs([]string{"version"})
	require.NoError(t, h.cli.Execute(context.Background()))
	assert.Equal(t, "kbridge version "+build.Version+"\n", h.out.String())
}

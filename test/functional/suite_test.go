package functional

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cucumber/godog"
)

type stateKeyType struct{}

var stateKey = stateKeyType{}

type testState struct {
	homeDir  string
	cwd      string
	binPath  string
	stdout   string
	stderr   string
	exitCode int
}

func getState(ctx context.Context) *testState {
	if s, ok := ctx.Value(stateKey).(*testState); ok {
		return s
	}
	return nil
}

func setState(ctx context.Context, s *testState) context.Context {
	return context.WithValue(ctx, stateKey, s)
}

// TestFeatures drives the built vx binary through the scenarios under
// features/. It never invokes the Go toolchain itself; the binary is built
// out-of-band (e.g. `go build -o <path> ./cmd/vx`) and its path handed in via
// VX_TEST_BINARY, mirroring the teacher's own functional-suite wiring.
func TestFeatures(t *testing.T) {
	binPath := os.Getenv("VX_TEST_BINARY")
	if binPath == "" {
		t.Skip("VX_TEST_BINARY not set; point it at a built vx binary")
	}

	absBin, err := filepath.Abs(binPath)
	if err != nil {
		t.Fatalf("resolving binary path: %v", err)
	}
	binPath = absBin

	opts := &godog.Options{
		Format:   "pretty",
		Paths:    []string{"features"},
		TestingT: t,
	}
	if tags := os.Getenv("VX_TEST_TAGS"); tags != "" {
		opts.Tags = tags
	}

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			initializeScenario(ctx, binPath)
		},
		Options: opts,
	}
	if suite.Run() != 0 {
		t.Fatal("functional tests failed")
	}
}

func initializeScenario(ctx *godog.ScenarioContext, binPath string) {
	// Each scenario gets a fresh VX_HOME and project directory so installed
	// state and vx.toml/vx.lock never leak across scenarios.
	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		base := filepath.Join(os.TempDir(), "vx-functional-"+sc.Id)
		homeDir := filepath.Join(base, "home")
		cwd := filepath.Join(base, "project")
		os.RemoveAll(base)
		if err := os.MkdirAll(homeDir, 0o755); err != nil {
			return ctx, err
		}
		if err := os.MkdirAll(cwd, 0o755); err != nil {
			return ctx, err
		}

		state := &testState{homeDir: homeDir, cwd: cwd, binPath: binPath}
		return setState(ctx, state), nil
	})

	ctx.Step(`^I run "([^"]*)"$`, iRun)
	ctx.Step(`^a file "([^"]*)" containing:$`, aFileContaining)

	ctx.Step(`^the exit code is (\d+)$`, theExitCodeIs)
	ctx.Step(`^the exit code is not (\d+)$`, theExitCodeIsNot)
	ctx.Step(`^the output contains "([^"]*)"$`, theOutputContains)
	ctx.Step(`^the error output contains "([^"]*)"$`, theErrorOutputContains)
	ctx.Step(`^the error output does not contain "([^"]*)"$`, theErrorOutputDoesNotContain)
	ctx.Step(`^the file "([^"]*)" exists$`, theFileExists)
	ctx.Step(`^the file "([^"]*)" does not exist$`, theFileDoesNotExist)
}

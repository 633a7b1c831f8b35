package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// testEnv holds the directories of one CLI workspace.
type testEnv struct {
	t         *testing.T
	configDir string
	dataDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	return &testEnv{
		t:         t,
		configDir: filepath.Join(root, "config"),
		dataDir:   filepath.Join(root, "data"),
	}
}

// run executes the root command in-process and returns its stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir, "--log-level", "quiet"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "fiberplant %v", args)
	return out
}

// decode runs a --json command and unmarshals its output.
func (e *testEnv) decode(v any, args ...string) {
	e.t.Helper()
	out := e.mustRun(append([]string{"--json"}, args...)...)
	require.NoError(e.t, json.Unmarshal([]byte(out), v), out)
}

func (e *testEnv) addCable(args ...string) string {
	e.t.Helper()
	var rec recordView
	e.decode(&rec, append([]string{"add", "cable"}, args...)...)
	require.NotEmpty(e.t, rec.ID)
	return rec.ID
}

func (e *testEnv) writeConfig(content string) {
	e.t.Helper()
	require.NoError(e.t, os.MkdirAll(e.configDir, 0o755))
	require.NoError(e.t, os.WriteFile(filepath.Join(e.configDir, configFileExt), []byte(content), 0o644))
}

func TestInitWritesConfigAndLayout(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun("init")
	assert.Contains(t, out, "Workspace initialized")

	cfg, err := os.ReadFile(filepath.Join(env.configDir, configFileExt))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "backend: sqlite")
	assert.Contains(t, string(cfg), "cable: FiberCable")

	classes, err := os.ReadFile(filepath.Join(env.dataDir, "classes.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(classes), `"FiberCable"`)
	assert.Contains(t, string(classes), `"Splitter"`)

	// A second init keeps the existing config and layout.
	env.mustRun("init")
	again, err := os.ReadFile(filepath.Join(env.configDir, configFileExt))
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun("version")
	assert.Contains(t, out, "fiberplant "+Version)
	assert.NoDirExists(t, env.configDir, "version does not touch the workspace")
}

func TestScanConvertsAndSaves(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	id := env.addCable("--ipid", "C1", "--buffers", "2", "--fibers", "24", "--fiber-records", "24", "--shape", "0,0 10,0")

	var first scanReport
	env.decode(&first, "scan")
	assert.Equal(t, 1, first.Scanned)
	assert.True(t, first.Converted)
	assert.False(t, first.BadIdentity)
	assert.False(t, first.BadBuffers)
	assert.False(t, first.BadFibers)
	require.Len(t, first.Trail, 1)
	assert.Equal(t, "converted", first.Trail[0].Outcome)
	assert.Equal(t, id, first.Trail[0].CableID)

	var rec recordView
	env.decode(&rec, "get", "FiberCable", id)
	assert.EqualValues(t, 12, rec.Fields["fiber_count"])
	assert.EqualValues(t, 2, rec.Fields["buffer_count"])

	var second scanReport
	env.decode(&second, "scan")
	assert.False(t, second.Converted)
	assert.False(t, second.BadIdentity || second.BadBuffers || second.BadFibers)
	assert.Empty(t, second.Trail)
}

func TestScanDryRunDiscardsConversions(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	id := env.addCable("--ipid", "C1", "--buffers", "2", "--fibers", "24", "--fiber-records", "24")

	out := env.mustRun("scan", "--dry-run")
	assert.Contains(t, out, "converted=true")
	assert.Contains(t, out, "dry run")

	var rec recordView
	env.decode(&rec, "get", "FiberCable", id)
	assert.EqualValues(t, 24, rec.Fields["fiber_count"])
}

func TestScanReportsDefects(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	env.addCable("--buffers", "1", "--fibers", "12")
	env.addCable("--ipid", "C2", "--fibers", "12")

	var rep scanReport
	env.decode(&rep, "scan")
	assert.Equal(t, 2, rep.Scanned)
	assert.True(t, rep.BadIdentity)
	assert.True(t, rep.BadBuffers)
	assert.False(t, rep.BadFibers)
	assert.False(t, rep.Converted)
	for _, e := range rep.Trail {
		assert.Equal(t, "WARN", e.Level)
	}
}

func TestScanMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	env.addCable("--ipid", "C1", "--buffers", "2", "--fibers", "24", "--fiber-records", "24")

	out := env.mustRun("scan", "--metrics")
	assert.Contains(t, out, "fiberplant_integrity_records_scanned_total 1")
	assert.Contains(t, out, `fiberplant_integrity_findings_total{outcome="converted"} 1`)
}

func TestSpliceResolveAndDeleteCascade(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	c1 := env.addCable("--ipid", "C1", "--buffers", "2", "--fibers", "12", "--shape", "0,0 10,0")
	c2 := env.addCable("--ipid", "C2", "--buffers", "2", "--fibers", "12", "--shape", "10,0 20,0")
	var closure recordView
	env.decode(&closure, "add", "closure", "--ipid", "SC1", "--at", "10,0")

	var res map[string]any
	env.decode(&res, "resolve", c1, c2)
	assert.Equal(t, "to_from", res["rule"])
	assert.Equal(t, "to", res["a_end"])
	assert.Equal(t, "from", res["b_end"])

	var sp map[string]any
	env.decode(&sp, "splice", c1, c2, "--a-strand", "3", "--b-strand", "24", "--closure", closure.ID)
	assert.Equal(t, "to_from", sp["rule"])
	assert.Equal(t, true, sp["resolved"])
	spliceID, _ := sp["id"].(string)
	require.NotEmpty(t, spliceID)

	var del map[string]any
	env.decode(&del, "delete", "FiberCable", c1)
	assert.EqualValues(t, 1, del["splices"])
	assert.EqualValues(t, 0, del["connections"])

	_, err := env.run("get", "FiberSplice", spliceID)
	require.ErrorIs(t, err, types.ErrNotFound)
	env.mustRun("get", "FiberCable", c2)
	env.mustRun("get", "SpliceClosure", closure.ID)
}

func TestSpliceUnresolvedAndCallerPolarity(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	c1 := env.addCable("--ipid", "C1", "--buffers", "1", "--fibers", "12", "--shape", "0,0 10,0")
	c2 := env.addCable("--ipid", "C2", "--buffers", "1", "--fibers", "12", "--shape", "50,0 60,0")

	out := env.mustRun("resolve", c1, c2)
	assert.Contains(t, out, "rule unresolved")

	var sp map[string]any
	env.decode(&sp, "splice", c1, c2)
	assert.Equal(t, "unresolved", sp["rule"])
	assert.Equal(t, false, sp["resolved"])

	env.decode(&sp, "splice", c1, c2, "--a-end", "to", "--b-end", "to", "--a-strand", "2", "--b-strand", "2")
	assert.Equal(t, "caller", sp["rule"])
	assert.Equal(t, "to", sp["b_end"])

	_, err := env.run("splice", c1, c2, "--a-end", "to")
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = env.run("splice", c1, c2, "--a-strand", "13")
	require.ErrorIs(t, err, types.ErrArgument)
}

func TestConnectChecksPorts(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	c1 := env.addCable("--ipid", "C1", "--buffers", "1", "--fibers", "12", "--shape", "0,0 10,0")
	var dev recordView
	env.decode(&dev, "add", "device", "--ipid", "S1", "--class", "Splitter", "--inputs", "1", "--outputs", "8", "--at", "0,0")
	assert.Equal(t, "Splitter", dev.Class)

	out := env.mustRun("connect", c1, dev.ID, "--port", "8", "--port-type", "output")
	assert.Contains(t, out, "from end strand 1 to output port 8")

	var cn map[string]any
	env.decode(&cn, "connect", c1, dev.ID, "--end", "to", "--strand", "5", "--port", "1")
	assert.Equal(t, "to", cn["cable_end"])
	assert.EqualValues(t, 5, cn["strand"])
	assert.Equal(t, "input", cn["port_type"])
	connID, _ := cn["id"].(string)
	require.NotEmpty(t, connID)

	_, err := env.run("connect", c1, dev.ID, "--port", "2", "--port-type", "input")
	require.ErrorIs(t, err, types.ErrArgument)
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = env.run("add", "device", "--class", "FiberCable")
	assert.Equal(t, exitUserError, exitCode(err))

	var del map[string]any
	env.decode(&del, "delete", "Splitter", dev.ID)
	assert.EqualValues(t, 2, del["connections"])
	_, err = env.run("get", "FiberConnection", connID)
	require.ErrorIs(t, err, types.ErrNotFound)
	env.mustRun("get", "FiberCable", c1)
}

func TestMoveSplice(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	c1 := env.addCable("--ipid", "C1", "--buffers", "1", "--fibers", "12", "--shape", "0,0 10,0")
	c2 := env.addCable("--ipid", "C2", "--buffers", "1", "--fibers", "12", "--shape", "10,0 20,0")
	var sc1, sc2 recordView
	env.decode(&sc1, "add", "closure", "--ipid", "SC1", "--at", "10,0")
	env.decode(&sc2, "add", "closure", "--ipid", "SC2", "--at", "10,1")

	var sp map[string]any
	env.decode(&sp, "splice", c1, c2, "--closure", sc1.ID)
	spliceID, _ := sp["id"].(string)
	require.NotEmpty(t, spliceID)

	var moved map[string]any
	env.decode(&moved, "move-splice", spliceID, "--closure", sc2.ID)
	assert.Equal(t, sc2.ID, moved["closure"])

	// The splice now goes with the second closure only.
	var del map[string]any
	env.decode(&del, "delete", "SpliceClosure", sc1.ID)
	assert.EqualValues(t, 0, del["splices"])
	env.mustRun("get", "FiberSplice", spliceID)

	out := env.mustRun("move-splice", spliceID)
	assert.Contains(t, out, "outside any closure")
	env.decode(&del, "delete", "SpliceClosure", sc2.ID)
	assert.EqualValues(t, 0, del["splices"])
	env.mustRun("get", "FiberSplice", spliceID)

	_, err := env.run("move-splice", "missing")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestGetMissingRecord(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")

	_, err := env.run("get", "FiberCable", "nope")
	require.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = env.run("get", "Nothing", "nope")
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestGetPrintsFields(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	id := env.addCable("--ipid", "C1", "--fibers", "12", "--shape", "0,0 5,5")

	out := env.mustRun("get", "FiberCable", id)
	assert.Contains(t, out, "FiberCable "+id)
	assert.Contains(t, out, "  ipid: C1")
	assert.Contains(t, out, "  buffer_count: <null>")
	assert.Contains(t, out, "  shape: 0,0 5,5")
}

func TestAddCableRejectsSingleVertex(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")

	_, err := env.run("add", "cable", "--shape", "1,1")
	assert.Equal(t, exitUserError, exitCode(err))
	_, err = env.run("add", "cable", "--shape", "1;1")
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestConfigOverridesSchemaAndDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.writeConfig(`backend: sqlite
schema:
  classes:
    cable: Span
    device_subtypes: [Tap]
defaults:
  - {class: Span, field: created_on, kind: constant, value: legacy}
`)
	env.mustRun("init")

	classes, err := os.ReadFile(filepath.Join(env.dataDir, "classes.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(classes), `"Span"`)
	assert.Contains(t, string(classes), `"Tap"`)
	assert.NotContains(t, string(classes), `"FiberCable"`)
	assert.NotContains(t, string(classes), `"Splitter"`)

	id := env.addCable("--ipid", "C1")
	var rec recordView
	env.decode(&rec, "get", "Span", id)
	assert.Equal(t, "Span", rec.Class)
	assert.Equal(t, "legacy", rec.Fields["created_on"])
	assert.Nil(t, rec.Fields["global_id"], "standard rules are replaced")
}

func TestStandardDefaultsStampFeatures(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("init")
	id := env.addCable("--ipid", "C1")

	var rec recordView
	env.decode(&rec, "get", "FiberCable", id)
	assert.NotEmpty(t, rec.Fields["global_id"])
	assert.NotEmpty(t, rec.Fields["created_on"])
	assert.NotEmpty(t, rec.Fields["modified_on"])
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitSuccess, exitCode(nil))
	assert.Equal(t, exitUserError, exitCode(usageErrorf("bad")))
	assert.Equal(t, exitUserError, exitCode(types.ErrArgument))
	assert.Equal(t, exitSysError, exitCode(types.ErrTransactionState))
}

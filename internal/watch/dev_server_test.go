package watch

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const devManifest = `
entries: [app/main]
modules:
  app/main:
    source: main.js
    deps: [./view]
    hot:
      accept: [./view]
  app/view:
    source: view.js
`

type devProject struct {
	dir    string
	server *DevServer
}

func newDevProject(t *testing.T) *devProject {
	t.Helper()
	dir := t.TempDir()
	p := &devProject{dir: dir}
	p.write(t, "modules.yaml", devManifest)
	p.write(t, "main.js", "main v1")
	p.write(t, "view.js", "view v1")

	ds, err := NewDevServer(&DevServerConfig{
		Address:      "127.0.0.1:0",
		ManifestPath: filepath.Join(dir, "modules.yaml"),
		Debounce:     20 * time.Millisecond,
		Metrics:      true,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Stop() })
	p.server = ds
	return p
}

func (p *devProject) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(p.dir, name), []byte(content), 0644))
}

func (p *devProject) path(name string) string {
	return filepath.Join(p.dir, name)
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestDevServer_NewDevServer(t *testing.T) {
	ds, err := NewDevServer(nil)
	require.NoError(t, err)
	defer ds.Stop()

	assert.NotNil(t, ds.builder)
	assert.NotNil(t, ds.engine)
	assert.NotNil(t, ds.reloadServer)
	assert.NotNil(t, ds.assetWatcher)
	assert.NotNil(t, ds.watcher)
	assert.NotNil(t, ds.metrics)
	assert.Equal(t, "localhost:3000", ds.Addr())
	assert.Equal(t, []string{"."}, ds.config.WatchDirs)
}

func TestDevServer_MetricsDisabled(t *testing.T) {
	ds, err := NewDevServer(&DevServerConfig{ManifestPath: "modules.yaml"})
	require.NoError(t, err)
	defer ds.Stop()

	assert.Nil(t, ds.metrics)

	srv := httptest.NewServer(ds.Handler())
	defer srv.Close()
	status, _ := get(t, srv.URL+RouteMetrics)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDevServer_LoadAndStatus(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, p.server.load())

	srv := httptest.NewServer(p.server.Handler())
	defer srv.Close()

	status, body := get(t, srv.URL+RouteStatus)
	require.Equal(t, http.StatusOK, status)

	var st Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.True(t, st.Loaded)
	assert.Equal(t, 2, st.Modules)
	assert.Equal(t, 2, st.Nodes)
	assert.Nil(t, st.LastCycle)

	_, ok := p.server.registry.Cached("app/view")
	assert.True(t, ok)
}

func TestDevServer_ClientScript(t *testing.T) {
	p := newDevProject(t)
	srv := httptest.NewServer(p.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + RouteClient)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), RouteSocket)
}

func TestDevServer_Graph(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, p.server.load())
	srv := httptest.NewServer(p.server.Handler())
	defer srv.Close()

	status, body := get(t, srv.URL+RouteGraph)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"app/view"`)

	status, body = get(t, srv.URL+RouteGraph+"?format=dot")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(body, "digraph hmr"))

	status, body = get(t, srv.URL+RouteGraph+"?format=mermaid")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(body, "graph TD"))

	status, _ = get(t, srv.URL+RouteGraph+"?format=svg")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDevServer_AcceptedChangeIsApplied(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, p.server.load())

	srv := httptest.NewServer(p.server.Handler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+RouteSocket, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.True(t, waitFor(t, time.Second, func() bool { return p.server.reloadServer.ConnectionCount() == 1 }))

	p.write(t, "view.js", "view v2")
	require.NoError(t, p.server.handleFileChange([]string{p.path("view.js")}))

	assert.Equal(t, MessageBuilding, readMessage(t, conn).Type)
	msg := readMessage(t, conn)
	assert.Equal(t, MessageUpdate, msg.Type)
	assert.Equal(t, []string{"app/view"}, msg.Updated)

	st := p.server.Status()
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, "applied", st.LastCycle.Outcome)
	assert.Equal(t, []string{"app/view"}, st.LastCycle.Updated)

	_, metrics := get(t, srv.URL+RouteMetrics)
	assert.Contains(t, metrics, `hmr_update_cycles_total{outcome="applied"} 1`)
	assert.Contains(t, metrics, "hmr_modules_updated_total 1")
	assert.Contains(t, metrics, "hmr_connected_clients 1")
}

func TestDevServer_UnacceptedChangeReloads(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, p.server.load())

	p.write(t, "main.js", "main v2")
	require.NoError(t, p.server.handleFileChange([]string{p.path("main.js")}))

	st := p.server.Status()
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, "reload", st.LastCycle.Outcome)
	assert.Equal(t, []string{"app/main"}, st.LastCycle.Unresolved)
}

func TestDevServer_AcceptedChangeAfterReloadIsApplied(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, p.server.load())

	p.write(t, "main.js", "main v2")
	require.NoError(t, p.server.handleFileChange([]string{p.path("main.js")}))
	require.Equal(t, "reload", p.server.Status().LastCycle.Outcome)

	p.write(t, "view.js", "view v2")
	require.NoError(t, p.server.handleFileChange([]string{p.path("view.js")}))

	st := p.server.Status()
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, "applied", st.LastCycle.Outcome)
	assert.Equal(t, []string{"app/view"}, st.LastCycle.Updated)
	assert.Empty(t, st.LastCycle.Unresolved)
	assert.True(t, st.Loaded)

	_, ok := p.server.registry.Cached("app/main")
	assert.True(t, ok)
}

func TestDevServer_UnrelatedFileIsIgnored(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, p.server.load())

	p.write(t, "notes.txt", "hello")
	require.NoError(t, p.server.handleFileChange([]string{p.path("notes.txt")}))
	assert.Nil(t, p.server.Status().LastCycle)
}

func TestDevServer_BuildErrorIsReported(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, p.server.load())

	p.write(t, "modules.yaml", "modules: [broken")
	err := p.server.handleFileChange([]string{p.path("modules.yaml")})
	assert.Error(t, err)

	srv := httptest.NewServer(p.server.Handler())
	defer srv.Close()
	_, metrics := get(t, srv.URL+RouteMetrics)
	assert.Contains(t, metrics, "hmr_build_errors_total 1")
}

func TestDevServer_RecoversFromFailedInitialLoad(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, os.Remove(p.path("view.js")))
	assert.Error(t, p.server.load())
	assert.False(t, p.server.Status().Loaded)

	p.write(t, "view.js", "view v1")
	require.NoError(t, p.server.handleFileChange([]string{p.path("view.js")}))
	assert.True(t, p.server.Status().Loaded)
}

func TestDevServer_ForcedUpdate(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, p.server.load())
	srv := httptest.NewServer(p.server.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+RouteUpdate, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, "noop", st.LastCycle.Outcome)
}

func TestDevServer_StartStop(t *testing.T) {
	p := newDevProject(t)
	require.NoError(t, p.server.Start())

	status, _ := get(t, "http://"+p.server.Addr()+RouteStatus)
	assert.Equal(t, http.StatusOK, status)

	// A real edit flows through the watcher.
	p.write(t, "view.js", "view v3")
	ok := waitFor(t, 3*time.Second, func() bool {
		st := p.server.Status()
		return st.LastCycle != nil && st.LastCycle.Outcome == "applied"
	})
	assert.True(t, ok, "expected the watcher to trigger an update cycle")

	require.NoError(t, p.server.Stop())
	require.NoError(t, p.server.Stop())
}

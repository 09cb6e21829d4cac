package status

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"
	"cyclops-power/internal/models"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server    *Server
	http      *httptest.Server
	manager   *charging.Manager
	settings  *config.Settings
	directory *charging.Directory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	settings := config.NewSettings(logger)
	directory := charging.NewDirectory(charging.NewRegistry(logger), func(*models.Consumer) charging.ConfigProvider {
		return settings.ForConsumer()
	}, logger)

	promRegistry := prometheus.NewRegistry()
	metrics, err := charging.NewMetrics(promRegistry)
	require.NoError(t, err)
	directory.SetMetrics(metrics)

	consumer := models.NewConsumer("cyclops", "Cyclops", models.NewPowerRelay(1000, 900), nil, nil)
	manager, err := directory.GetOrCreateManager(consumer)
	require.NoError(t, err)
	_, err = manager.Initialize()
	require.NoError(t, err)
	manager.RechargeConsumer()

	server := NewServer(&config.Config{}, directory, settings, promRegistry, logger)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return &testEnv{
		server:    server,
		http:      httpServer,
		manager:   manager,
		settings:  settings,
		directory: directory,
	}
}

func TestServer_Status(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.http.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Consumers []map[string]interface{} `json:"consumers"`
		Settings  map[string]interface{}   `json:"settings"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	require.Len(t, body.Consumers, 1)
	assert.Equal(t, "cyclops", body.Consumers[0]["consumer_id"])
	assert.Equal(t, "ready", body.Consumers[0]["state"])
	assert.Equal(t, 95.0, body.Settings["deficit_threshold"])
}

func TestServer_UpdateSettings(t *testing.T) {
	env := newTestEnv(t)

	payload := []byte(`{"deficit_threshold": 70.6, "challenge": "normal"}`)
	resp, err := http.Post(env.http.URL+"/settings", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 71.0, env.settings.DeficitThreshold())
	assert.Equal(t, config.ChallengeNormal, env.settings.ChallengeLevel())

	resp, err = http.Post(env.http.URL+"/settings", "application/json", strings.NewReader(`{"challenge": "brutal"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `cyclops_recharge_ticks_total{consumer="cyclops"} 1`)
}

func TestServer_WebSocketUnknownConsumer(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/prawn"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_WebSocketStream(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/cyclops"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var initial map[string]interface{}
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "cyclops", initial["consumer_id"])

	assert.Eventually(t, func() bool {
		return env.server.SubscriberCount("cyclops") == 1
	}, time.Second, 10*time.Millisecond)

	env.manager.Consumer().Relay.ConsumeEnergy(100)
	env.manager.RechargeConsumer()
	env.server.Broadcast(env.manager, env.manager.LastReport())

	var update map[string]interface{}
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, 200.0, update["last_deficit"])
}

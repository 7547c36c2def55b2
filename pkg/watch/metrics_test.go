package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/kubereflector/controller/pkg/gateway"
	"github.com/kubereflector/controller/pkg/gateway/fake"
)

type recordingMetrics struct {
	mu         sync.Mutex
	restarts   int
	lastDepths map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{lastDepths: map[string]int{}}
}

func (m *recordingMetrics) SessionRestarted(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
}

func (m *recordingMetrics) SetQueueDepth(kind string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDepths[kind] = depth
}

func (m *recordingMetrics) restartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

func TestSession_ReportsRestartOnReconnect(t *testing.T) {
	gw := fake.New()
	session := NewSession(gw, gateway.KindSecret, logr.Discard(), 4, time.Hour)
	metrics := newRecordingMetrics()
	session.SetMetrics(metrics)
	session.RegisterHandler(&testHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	gw.CloseSession(gateway.KindSecret)

	// The closed session handled no events, so the reconnect first waits
	// out minBackoff (1s) before the restart is reported.
	require.Eventually(t, func() bool {
		return metrics.restartCount() >= 1
	}, 3*time.Second, 10*time.Millisecond, "a reconnect after session close must report a restart")
}

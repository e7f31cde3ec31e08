package events

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutAndRecorder(t *testing.T) {
	var a, b Recorder
	sink := Fanout{&a, nil, &b}
	sink.Emit(Event{Kind: KindSwapPhase, Component: "auth", Phase: "Validating"})
	sink.Emit(Event{Kind: KindSwapPhase, Component: "auth", Phase: "BackedUp"})
	sink.Emit(Event{Kind: KindSwapPhase, Component: "db", Phase: "Validating"})

	assert.Len(t, a.Events(), 3)
	assert.Equal(t, []string{"Validating", "BackedUp"}, b.Phases("auth"))
}

func TestMetricsSink(t *testing.T) {
	m := NewMetricsSink()
	reg := prometheus.NewRegistry()
	m.MustRegister(reg)

	m.Emit(Event{Kind: KindSwapPhase, Phase: "Committed"})
	m.Emit(Event{Kind: KindSwapPhase, Phase: "Committed"})
	m.Emit(Event{Kind: KindSwapPhase, Phase: "Failed", Fatal: true})
	m.Emit(Event{Kind: KindResolutionError, Reason: "VersionConflict"})
	m.Emit(Event{Kind: KindIntegrity, Component: "db"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.swapPhases.WithLabelValues("Committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutionErrors.WithLabelValues("VersionConflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.integrityErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fatal))
}

func TestLogSink_FatalIsAlerted(t *testing.T) {
	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{Verbosity: 1})

	LogSink{Log: log}.Emit(Event{Kind: KindSwapPhase, Component: "auth", Phase: "Failed", Error: "rollback failed", Fatal: true})
	LogSink{Log: log}.Emit(Event{Kind: KindSwapPhase, Component: "auth", Phase: "Committed"})

	require.Len(t, lines, 2)
	assert.True(t, strings.Contains(lines[0], `"alert"="fatal"`), lines[0])
	assert.True(t, strings.Contains(lines[1], `"phase"="Committed"`), lines[1])
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "semverx.events.", logr.Discard())

	sink.Emit(Event{Kind: KindSwapPhase, Component: "auth", Phase: "Committed"})
	sink.Emit(Event{Kind: KindResolutionError, Component: "auth", Reason: "VersionConflict", Error: "boom"})

	require.Equal(t, []string{"semverx.events.swapphase", "semverx.events.resolutionerror"}, pub.subjects)

	var got Event
	require.NoError(t, json.Unmarshal(pub.payloads[1], &got))
	assert.Equal(t, KindResolutionError, got.Kind)
	assert.Equal(t, "VersionConflict", got.Reason)
	assert.Equal(t, "boom", got.Error)

	pub.err = errors.New("disconnected")
	sink.Emit(Event{Kind: KindIntegrity, Component: "db"})
	assert.Len(t, pub.subjects, 3)
}

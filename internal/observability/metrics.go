package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "barberbot_active_calls",
		Help: "Number of calls currently registered",
	})

	totalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barberbot_calls_total",
		Help: "Calls processed, by direction",
	}, []string{"direction"})

	callDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "barberbot_call_duration_seconds",
		Help:    "Duration of phone calls in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	})

	callOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barberbot_call_outcomes_total",
		Help: "Leads captured and appointments booked",
	}, []string{"outcome"})

	transcripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barberbot_stt_transcripts_total",
		Help: "Transcript events received from STT",
	}, []string{"kind"})

	ttsFirstChunk = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "barberbot_tts_first_chunk_seconds",
		Help:    "Time from synthesis request to first audio chunk",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barberbot_tts_requests_total",
		Help: "Synthesis requests by result",
	}, []string{"status"})

	llmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "barberbot_llm_latency_seconds",
		Help:    "LLM converse latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 4.0, 8.0, 16.0},
	}, []string{"operation", "status"})

	toolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barberbot_tool_invocations_total",
		Help: "Dialogue tool invocations by tool and outcome",
	}, []string{"tool", "outcome"})

	bargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barberbot_barge_ins_total",
		Help: "Bot speech interrupted by the caller",
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barberbot_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "barberbot_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barberbot_audio_bytes_total",
		Help: "Audio bytes relayed",
	}, []string{"direction"}) // "in" or "out"

	callerSpeechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barberbot_caller_speech_segments_total",
		Help: "Caller speech segments detected on inbound audio",
	})

	inboundLevel = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "barberbot_inbound_level_rms",
		Help:    "RMS level of inbound carrier frames",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
)

// CallMetrics records metrics for a single call
type CallMetrics struct {
	direction string
	startTime time.Time
}

// NewCallMetrics starts tracking a call and increments the active gauge
func NewCallMetrics(direction string) *CallMetrics {
	activeCalls.Inc()
	totalCalls.WithLabelValues(direction).Inc()
	return &CallMetrics{direction: direction, startTime: time.Now()}
}

// RecordCallEnd decrements the active gauge and records outcome flags
func (m *CallMetrics) RecordCallEnd(leadCaptured, appointmentBooked bool) {
	activeCalls.Dec()
	callDuration.Observe(time.Since(m.startTime).Seconds())
	if leadCaptured {
		callOutcomes.WithLabelValues("lead_captured").Inc()
	}
	if appointmentBooked {
		callOutcomes.WithLabelValues("appointment_booked").Inc()
	}
}

// RecordTranscript counts an STT transcript event
func (m *CallMetrics) RecordTranscript(isFinal bool) {
	kind := "partial"
	if isFinal {
		kind = "final"
	}
	transcripts.WithLabelValues(kind).Inc()
}

// RecordTTS records one synthesis. firstChunk is zero when no audio was produced.
func (m *CallMetrics) RecordTTS(firstChunk time.Duration, err error) {
	if firstChunk > 0 {
		ttsFirstChunk.Observe(firstChunk.Seconds())
	}
	ttsRequests.WithLabelValues(statusLabel(err)).Inc()
}

// RecordBargeIn counts a caller interruption
func (m *CallMetrics) RecordBargeIn() {
	bargeIns.Inc()
}

// RecordAudioBytes records relayed audio bytes
func (m *CallMetrics) RecordAudioBytes(direction string, n int) {
	audioBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordInboundLevel observes the level of an inbound frame
func (m *CallMetrics) RecordInboundLevel(rms float64, speechStarted bool) {
	inboundLevel.Observe(rms)
	if speechStarted {
		callerSpeechSegments.Inc()
	}
}

// RecordError records an error
func (m *CallMetrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordError records an error outside of a call
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// ObserveLLM records the latency of a converse call
func ObserveLLM(operation string, elapsed time.Duration, err error) {
	llmLatency.WithLabelValues(operation, statusLabel(err)).Observe(elapsed.Seconds())
}

// RecordToolInvocation counts a dialogue tool execution
func RecordToolInvocation(tool, outcome string) {
	toolInvocations.WithLabelValues(tool, outcome).Inc()
}

// UpdateCircuitBreakerState updates the circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hotmic/internal/domain"
)

const namespace = "hotmic"

// Recorder implements ports.Metrics on a private Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	framesTotal      *prometheus.CounterVec
	inboundTotal     *prometheus.CounterVec
	unknownTagsTotal prometheus.Counter
	turnsTotal       prometheus.Counter
	bargeInsTotal    prometheus.Counter
	closesTotal      *prometheus.CounterVec
	playbacksTotal   prometheus.Counter
	state            prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Outbound PCM frames by result.",
		}, []string{"result"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Decoded inbound units by event kind.",
		}, []string{"kind"}),
		unknownTagsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_tags_total",
			Help:      "Inbound units that looked tagged but were treated as transcript.",
		}),
		turnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Capture turns started.",
		}),
		bargeInsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Agent replies interrupted by a new capture.",
		}),
		closesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_closes_total",
			Help:      "Agent connections ended, by whether the close was expected.",
		}, []string{"expected"}),
		playbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_completed_total",
			Help:      "Agent replies played to completion.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversation_state",
			Help:      "Current conversation state (0 idle, 1 connecting, 2 capturing, 3 thinking, 4 speaking).",
		}),
	}

	r.registry.MustRegister(
		r.framesTotal,
		r.inboundTotal,
		r.unknownTagsTotal,
		r.turnsTotal,
		r.bargeInsTotal,
		r.closesTotal,
		r.playbacksTotal,
		r.state,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) FrameSent()    { r.framesTotal.WithLabelValues("sent").Inc() }
func (r *Recorder) FrameDropped() { r.framesTotal.WithLabelValues("dropped").Inc() }

func (r *Recorder) InboundEvent(kind domain.EventKind) {
	r.inboundTotal.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) UnknownTag()       { r.unknownTagsTotal.Inc() }
func (r *Recorder) TurnStarted()      { r.turnsTotal.Inc() }
func (r *Recorder) BargeIn()          { r.bargeInsTotal.Inc() }
func (r *Recorder) PlaybackFinished() { r.playbacksTotal.Inc() }

func (r *Recorder) TransportClosed(expected bool) {
	label := "false"
	if expected {
		label = "true"
	}
	r.closesTotal.WithLabelValues(label).Inc()
}

func (r *Recorder) State(state domain.ConversationState) {
	r.state.Set(float64(state.Ordinal()))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics exporter listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

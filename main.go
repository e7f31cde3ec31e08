package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	semverxv1alpha1 "github.com/anvil-platform/semverx/api/v1alpha1"
	"github.com/anvil-platform/semverx/controllers"
	"github.com/anvil-platform/semverx/internal/catalog"
	"github.com/anvil-platform/semverx/internal/events"
	"github.com/anvil-platform/semverx/internal/hotswap"
	"github.com/anvil-platform/semverx/internal/resolver"
	"github.com/anvil-platform/semverx/internal/store"
	"github.com/anvil-platform/semverx/internal/transport"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(semverxv1alpha1.AddToScheme(scheme))
}

type options struct {
	metricsAddr          string
	probeAddr            string
	grpcAddr             string
	enableLeaderElection bool
	publishNamespace     string
	storePath            string
	signingKey           string
	cacheSize            int
	sweepInterval        time.Duration
	natsURL              string
	natsSubject          string
}

func main() {
	var o options
	flag.StringVar(&o.metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&o.probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.StringVar(&o.grpcAddr, "grpc-bind-address", "", "The address the SwapService binds to. Empty disables it.")
	flag.BoolVar(&o.enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager.")
	flag.StringVar(&o.publishNamespace, "publish-namespace", "", "Namespace receiving one ConfigMap per component. Empty disables publishing.")
	flag.StringVar(&o.storePath, "store-path", "", "Directory of the component store. Empty keeps the catalog in memory only.")
	flag.StringVar(&o.signingKey, "signing-key", os.Getenv("SEMVERX_SIGNING_KEY"), "HMAC key used to sign swapped payloads.")
	flag.IntVar(&o.cacheSize, "resolution-cache-size", resolver.DefaultCacheSize, "Number of resolution plans kept in memory.")
	flag.DurationVar(&o.sweepInterval, "integrity-sweep-interval", 5*time.Minute, "How often every component's checksum is verified.")
	flag.StringVar(&o.natsURL, "nats-url", "", "NATS server receiving core events. Empty disables publishing.")
	flag.StringVar(&o.natsSubject, "nats-subject", "semverx.events", "Subject prefix for published core events.")

	zapOpts := zap.Options{Development: true}
	zapOpts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))

	if err := run(o); err != nil {
		setupLog.Error(err, "manager exited")
		os.Exit(1)
	}
}

func run(o options) error {
	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: o.metricsAddr},
		HealthProbeBindAddress: o.probeAddr,
		LeaderElection:         o.enableLeaderElection,
		LeaderElectionID:       "swapcore.semverx.anvil.dev",
	})
	if err != nil {
		return fmt.Errorf("unable to start manager: %w", err)
	}

	metricsSink := events.NewMetricsSink()
	metricsSink.MustRegister(metrics.Registry)
	sink := events.Fanout{events.LogSink{Log: ctrl.Log.WithName("events")}, metricsSink}
	if o.natsURL != "" {
		nc, err := events.DialNATS(o.natsURL)
		if err != nil {
			return fmt.Errorf("unable to connect to NATS at %s: %w", o.natsURL, err)
		}
		defer nc.Drain()
		sink = append(sink, events.NewNATSSink(nc, o.natsSubject, ctrl.Log.WithName("nats")))
	}

	cat := catalog.New()
	var st *store.Badger
	if o.storePath != "" {
		st, err = store.Open(store.Config{Path: o.storePath, Log: ctrl.Log.WithName("store")})
		if err != nil {
			return fmt.Errorf("unable to open component store %s: %w", o.storePath, err)
		}
		defer st.Close()

		records, err := st.Load()
		if err != nil {
			return fmt.Errorf("unable to load component store: %w", err)
		}
		if err := cat.Import(records); err != nil {
			return fmt.Errorf("unable to restore catalog: %w", err)
		}
		setupLog.Info("restored catalog", "components", len(records))
	}

	stress := resolver.NewStressMonitor()
	if err := metrics.Registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "semverx_resolution_stress",
		Help: "Time-decayed average cost of recent resolutions, conflicts and cycles.",
	}, stress.Current)); err != nil {
		return fmt.Errorf("unable to register stress gauge: %w", err)
	}
	res, err := resolver.NewDefault(cat,
		resolver.WithCacheSize(o.cacheSize),
		resolver.WithSink(sink),
		resolver.WithStressMonitor(stress),
	)
	if err != nil {
		return fmt.Errorf("unable to create resolver: %w", err)
	}
	engineOpts := []hotswap.Option{hotswap.WithSink(sink), hotswap.WithLogger(ctrl.Log.WithName("hotswap"))}
	if o.signingKey != "" {
		engineOpts = append(engineOpts, hotswap.WithSigner(hotswap.HMACSigner{Key: []byte(o.signingKey)}))
	}
	engine := hotswap.New(cat, engineOpts...)

	var persister controllers.Persister
	if st != nil {
		persister = st
	}

	if err := (&controllers.ComponentReconciler{
		Client:    mgr.GetClient(),
		Scheme:    mgr.GetScheme(),
		Recorder:  mgr.GetEventRecorderFor("Component"),
		Catalog:   cat,
		Resolver:  res,
		Engine:    engine,
		Store:     persister,
		Namespace: o.publishNamespace,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create Component controller: %w", err)
	}

	if err := (&controllers.ComponentSwapReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Recorder: mgr.GetEventRecorderFor("ComponentSwap"),
		Catalog:  cat,
		Engine:   engine,
		Store:    persister,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create ComponentSwap controller: %w", err)
	}

	if err := mgr.Add(manager.RunnableFunc(func(ctx context.Context) error {
		return cat.RunSweep(ctx, o.sweepInterval, sink)
	})); err != nil {
		return fmt.Errorf("unable to add integrity sweep: %w", err)
	}
	if st != nil {
		if err := mgr.Add(manager.RunnableFunc(func(ctx context.Context) error {
			return st.RunGC(ctx, 10*time.Minute)
		})); err != nil {
			return fmt.Errorf("unable to add store GC: %w", err)
		}
	}

	if o.grpcAddr != "" {
		var serverOpts []transport.ServerOption
		serverOpts = append(serverOpts, transport.WithLogger(ctrl.Log.WithName("grpc")))
		if st != nil {
			serverOpts = append(serverOpts, transport.WithPersister(st))
		}
		srv := transport.NewServer(cat, res, engine, serverOpts...)
		if err := mgr.Add(manager.RunnableFunc(func(ctx context.Context) error {
			return serveGRPC(ctx, o.grpcAddr, srv)
		})); err != nil {
			return fmt.Errorf("unable to add grpc server: %w", err)
		}
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", func(_ *http.Request) error {
		if !engine.Healthy() {
			return errors.New("hot-swap engine reported a failed rollback")
		}
		return nil
	}); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		return fmt.Errorf("problem running manager: %w", err)
	}
	return nil
}

func serveGRPC(ctx context.Context, addr string, srv *transport.Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	g := grpc.NewServer()
	srv.Register(g)
	go func() {
		<-ctx.Done()
		srv.Shutdown()
		g.GracefulStop()
	}()
	setupLog.Info("serving SwapService", "address", addr)
	return g.Serve(lis)
}

// Package main is the entry point for the reflector controller.
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/kubereflector/controller/pkg/config"
	"github.com/kubereflector/controller/pkg/engine"
	"github.com/kubereflector/controller/pkg/gateway/cluster"
	reflectormetrics "github.com/kubereflector/controller/pkg/metrics"
)

var setupLog = ctrl.Log.WithName("setup")

func main() {
	var (
		metricsAddr          string
		probeAddr            string
		enableLeaderElection bool
		leaderElectionID     string
		kubeconfig           string
	)

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active reflector.")
	flag.StringVar(&leaderElectionID, "leader-election-id", "reflector-leader-election",
		"The name of the leader election lease.")
	flag.StringVar(&kubeconfig, "kubeconfig", "",
		"Path to a kubeconfig file. Overrides REFLECTOR_KUBECONFIG and in-cluster discovery.")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg, err := config.Load()
	if err != nil {
		setupLog.Error(err, "unable to load configuration")
		os.Exit(1)
	}
	if kubeconfig != "" {
		cfg.Kubeconfig = kubeconfig
	}

	setupLog.Info("starting reflector controller",
		"watcherTimeoutSeconds", cfg.Watcher.TimeoutSeconds,
		"watcherQueueCapacity", cfg.Watcher.QueueCapacity,
	)

	restConfig, err := resolveRestConfig(cfg.Kubeconfig)
	if err != nil {
		setupLog.Error(err, "unable to resolve cluster configuration")
		os.Exit(1)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		setupLog.Error(err, "unable to create clientset")
		os.Exit(1)
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Metrics: metricsserver.Options{
			BindAddress: metricsAddr,
		},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       leaderElectionID,
	})
	if err != nil {
		setupLog.Error(err, "unable to create manager")
		os.Exit(1)
	}

	recorder := reflectormetrics.New(metrics.Registry)
	gw := cluster.New(clientset)

	signalCtx := ctrl.SetupSignalHandler()
	eng := engine.New(signalCtx, gw, cfg.Watcher, setupLog, recorder, recorder)

	if err := mgr.Add(eng); err != nil {
		setupLog.Error(err, "unable to register reflection engine")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(signalCtx); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

// resolveRestConfig picks the cluster connection in the order spec.md §6
// names: an explicit kubeconfig path, then in-cluster service-account
// discovery, then the default kubeconfig loading rules ($KUBECONFIG or
// ~/.kube/config).
func resolveRestConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}
	if inCluster, err := rest.InClusterConfig(); err == nil {
		return inCluster, nil
	}
	loaded, err := clientcmd.NewDefaultClientConfigLoadingRules().Load()
	if err != nil {
		return nil, fmt.Errorf("unable to locate cluster configuration: %w", err)
	}
	return clientcmd.NewDefaultClientConfig(*loaded, &clientcmd.ConfigOverrides{}).ClientConfig()
}

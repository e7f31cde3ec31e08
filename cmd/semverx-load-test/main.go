package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	"sigs.k8s.io/controller-runtime/pkg/client"

	semverxv1alpha1 "github.com/anvil-platform/semverx/api/v1alpha1"
)

var (
	scheme = runtime.NewScheme()
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(semverxv1alpha1.AddToScheme(scheme))
}

func main() {
	var kubeconfig string
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	} else {
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	flag.StringVar(&kubeconfig, "kubeconfig", kubeconfig, "absolute path to the kubeconfig file")

	var chains int
	var depth int
	var version string
	var cleanup bool

	flag.IntVar(&chains, "chains", 10, "Number of independent dependency chains")
	flag.IntVar(&depth, "depth", 3, "Components per chain; each depends on the previous one")
	flag.StringVar(&version, "version", "1.stable.0.stable.0.stable", "Version given to every component")
	flag.BoolVar(&cleanup, "cleanup", true, "Delete the components when done")
	flag.Parse()

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		log.Fatalf("Error building kubeconfig: %v", err)
	}

	k8sClient, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		log.Fatalf("Error creating client: %v", err)
	}

	fmt.Printf("Starting load test: %d chains of depth %d\n", chains, depth)

	var wg sync.WaitGroup
	start := time.Now()
	latencies := make(chan time.Duration, chains)
	runID := time.Now().Unix()

	for i := 0; i < chains; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			names := make([]string, depth)
			for d := range names {
				names[d] = fmt.Sprintf("load-test-%d-%d-%d", runID, id, d)
			}
			if cleanup {
				defer func() {
					for _, n := range names {
						_ = k8sClient.Delete(context.Background(), &semverxv1alpha1.Component{ObjectMeta: metav1.ObjectMeta{Name: n}})
					}
				}()
			}

			createStart := time.Now()
			for d, n := range names {
				comp := &semverxv1alpha1.Component{
					ObjectMeta: metav1.ObjectMeta{Name: n},
					Spec: semverxv1alpha1.ComponentSpec{
						Version: version,
						Payload: n,
					},
				}
				if d > 0 {
					comp.Spec.Dependencies = []semverxv1alpha1.ComponentDependency{{Target: names[d-1]}}
				}
				if err := k8sClient.Create(context.Background(), comp); err != nil {
					fmt.Printf("Error creating component %s: %v\n", n, err)
					return
				}
			}

			// The chain is resolved once its last component is Ready.
			head := names[len(names)-1]
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			for {
				select {
				case <-ctx.Done():
					fmt.Printf("Timeout waiting for component %s\n", head)
					return
				case <-time.After(1 * time.Second):
					var current semverxv1alpha1.Component
					if err := k8sClient.Get(ctx, client.ObjectKey{Name: head}, &current); err != nil {
						continue
					}
					if current.Status.Phase == "Ready" && len(current.Status.ResolvedOrder) == depth {
						latency := time.Since(createStart)
						latencies <- latency
						fmt.Printf("Chain %d resolved in %v\n", id, latency)
						return
					}
				}
			}
		}(i)
	}

	wg.Wait()
	close(latencies)
	totalDuration := time.Since(start)

	var totalLatency time.Duration
	count := 0
	for l := range latencies {
		totalLatency += l
		count++
	}

	if count > 0 {
		avgLatency := totalLatency / time.Duration(count)
		fmt.Printf("Load test completed in %v. Avg resolution latency: %v\n", totalDuration, avgLatency)
	} else {
		fmt.Printf("Load test completed in %v. No chains resolved.\n", totalDuration)
	}
}

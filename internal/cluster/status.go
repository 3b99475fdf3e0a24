// Package cluster summarizes node, pod, and deployment health from the
// Kubernetes API.
package cluster

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	maxProblemPods   = 20
	crashLoopMinimum = 5
)

// NodeInfo is the health view of one node.
type NodeInfo struct {
	Name           string
	Ready          bool
	MemoryPressure bool
	DiskPressure   bool
}

// PodIssue is one pod in a problem state.
type PodIssue struct {
	Namespace string
	Name      string
	Phase     string
	Restarts  int32
}

// DeploymentIssue is a deployment running below its desired replica count.
type DeploymentIssue struct {
	Namespace string
	Name      string
	Desired   int32
	Available int32
}

// Summary is a compact cluster overview.
type Summary struct {
	Nodes            []NodeInfo
	PodPhaseCounts   map[string]int
	ProblemPods      []PodIssue
	DeploymentIssues []DeploymentIssue
}

// NodesReady counts nodes with a true Ready condition.
func (s *Summary) NodesReady() int {
	n := 0
	for _, node := range s.Nodes {
		if node.Ready {
			n++
		}
	}
	return n
}

// Client fetches cluster status summaries.
type Client struct {
	clientset kubernetes.Interface
}

// NewClient builds a client from in-cluster config, or from the given
// kubeconfig path when running outside the cluster.
func NewClient(kubeconfigPath string) (*Client, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if kubeconfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return &Client{clientset: clientset}, nil
}

// NewClientWithClientset wraps an existing clientset. Used in tests with the
// fake clientset.
func NewClientWithClientset(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

// Status collects the node/pod/deployment summary.
func (c *Client) Status(ctx context.Context) (*Summary, error) {
	summary := &Summary{PodPhaseCounts: map[string]int{}}

	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	for _, node := range nodes.Items {
		info := NodeInfo{Name: node.Name}
		for _, cond := range node.Status.Conditions {
			isTrue := cond.Status == corev1.ConditionTrue
			switch cond.Type {
			case corev1.NodeReady:
				info.Ready = isTrue
			case corev1.NodeMemoryPressure:
				info.MemoryPressure = isTrue
			case corev1.NodeDiskPressure:
				info.DiskPressure = isTrue
			}
		}
		summary.Nodes = append(summary.Nodes, info)
	}

	pods, err := c.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}
	for _, pod := range pods.Items {
		phase := string(pod.Status.Phase)
		if phase == "" {
			phase = "Unknown"
		}
		summary.PodPhaseCounts[phase]++

		switch pod.Status.Phase {
		case corev1.PodPending, corev1.PodFailed, corev1.PodUnknown:
			summary.ProblemPods = append(summary.ProblemPods, PodIssue{
				Namespace: pod.Namespace,
				Name:      pod.Name,
				Phase:     phase,
			})
		}

		for _, cs := range pod.Status.ContainerStatuses {
			if cs.RestartCount > crashLoopMinimum &&
				cs.State.Waiting != nil && cs.State.Waiting.Reason == "CrashLoopBackOff" {
				summary.ProblemPods = append(summary.ProblemPods, PodIssue{
					Namespace: pod.Namespace,
					Name:      pod.Name,
					Phase:     "CrashLoopBackOff",
					Restarts:  cs.RestartCount,
				})
			}
		}
	}
	if len(summary.ProblemPods) > maxProblemPods {
		summary.ProblemPods = summary.ProblemPods[:maxProblemPods]
	}

	deployments, err := c.clientset.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	for _, d := range deployments.Items {
		var desired int32
		if d.Spec.Replicas != nil {
			desired = *d.Spec.Replicas
		}
		if d.Status.AvailableReplicas < desired {
			summary.DeploymentIssues = append(summary.DeploymentIssues, DeploymentIssue{
				Namespace: d.Namespace,
				Name:      d.Name,
				Desired:   desired,
				Available: d.Status.AvailableReplicas,
			})
		}
	}

	return summary, nil
}

// Format renders the summary into compact text for model consumption.
func (s *Summary) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "NODES: %d/%d ready\n", s.NodesReady(), len(s.Nodes))
	for _, n := range s.Nodes {
		var flags []string
		if !n.Ready {
			flags = append(flags, "NOT_READY")
		}
		if n.MemoryPressure {
			flags = append(flags, "MEM_PRESSURE")
		}
		if n.DiskPressure {
			flags = append(flags, "DISK_PRESSURE")
		}
		if len(flags) > 0 {
			fmt.Fprintf(&b, "  %s [%s]\n", n.Name, strings.Join(flags, ", "))
		} else {
			fmt.Fprintf(&b, "  %s\n", n.Name)
		}
	}

	fmt.Fprintf(&b, "PODS: %d running, %d pending, %d failed, %d succeeded\n",
		s.PodPhaseCounts["Running"], s.PodPhaseCounts["Pending"],
		s.PodPhaseCounts["Failed"], s.PodPhaseCounts["Succeeded"])

	if len(s.ProblemPods) > 0 {
		b.WriteString("PROBLEM_PODS:\n")
		limit := len(s.ProblemPods)
		if limit > 10 {
			limit = 10
		}
		for _, p := range s.ProblemPods[:limit] {
			fmt.Fprintf(&b, "  %s/%s: %s\n", p.Namespace, p.Name, p.Phase)
		}
	}

	if len(s.DeploymentIssues) > 0 {
		b.WriteString("DEPLOYMENT_ISSUES:\n")
		for _, d := range s.DeploymentIssues {
			fmt.Fprintf(&b, "  %s/%s: %d/%d replicas\n", d.Namespace, d.Name, d.Available, d.Desired)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

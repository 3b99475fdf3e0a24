package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func node(name string, ready bool) *corev1.Node {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{Conditions: []corev1.NodeCondition{
			{Type: corev1.NodeReady, Status: status},
		}},
	}
}

func pod(ns, name string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: ns, Name: name},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

func int32ptr(v int32) *int32 { return &v }

func TestStatusSummarizesCluster(t *testing.T) {
	crashPod := pod("apps", "worker-1", corev1.PodRunning)
	crashPod.Status.ContainerStatuses = []corev1.ContainerStatus{{
		RestartCount: 12,
		State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{
			Reason: "CrashLoopBackOff",
		}},
	}}

	clientset := fake.NewSimpleClientset(
		node("mercury-server", true),
		node("venus", false),
		pod("apps", "web-1", corev1.PodRunning),
		pod("apps", "job-1", corev1.PodPending),
		crashPod,
		&appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Namespace: "apps", Name: "web"},
			Spec:       appsv1.DeploymentSpec{Replicas: int32ptr(3)},
			Status:     appsv1.DeploymentStatus{AvailableReplicas: 1},
		},
	)

	summary, err := NewClientWithClientset(clientset).Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NodesReady())
	assert.Len(t, summary.Nodes, 2)

	assert.Equal(t, 2, summary.PodPhaseCounts["Running"])
	assert.Equal(t, 1, summary.PodPhaseCounts["Pending"])

	require.Len(t, summary.ProblemPods, 2)
	phases := []string{summary.ProblemPods[0].Phase, summary.ProblemPods[1].Phase}
	assert.Contains(t, phases, "Pending")
	assert.Contains(t, phases, "CrashLoopBackOff")

	require.Len(t, summary.DeploymentIssues, 1)
	assert.Equal(t, int32(3), summary.DeploymentIssues[0].Desired)
	assert.Equal(t, int32(1), summary.DeploymentIssues[0].Available)

	text := summary.Format()
	assert.Contains(t, text, "NODES: 1/2 ready")
	assert.Contains(t, text, "venus [NOT_READY]")
	assert.Contains(t, text, "PROBLEM_PODS:")
	assert.Contains(t, text, "apps/web: 1/3 replicas")
}

func TestFormatHealthyCluster(t *testing.T) {
	clientset := fake.NewSimpleClientset(node("mercury-server", true))
	summary, err := NewClientWithClientset(clientset).Status(context.Background())
	require.NoError(t, err)

	text := summary.Format()
	assert.Contains(t, text, "NODES: 1/1 ready")
	assert.NotContains(t, text, "PROBLEM_PODS")
	assert.NotContains(t, text, "DEPLOYMENT_ISSUES")
}

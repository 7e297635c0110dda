// Package build orchestrates one image build inside the cluster:
// provision namespace and credentials, deliver the filtered context,
// watch the workload to a terminal outcome, and tear the credential
// secret down on every exit path.
package build

import (
	"time"

	"github.com/podforge/podforge/lib/reference"
)

const (
	// Namespace is the fixed build namespace, shared across
	// invocations and never owned by a single build.
	Namespace = "image-builds"

	// SecretName is the fixed name of the registry credential secret.
	SecretName = "registry-auth"

	// ContextMountPath is where the workload expects the build context.
	ContextMountPath = "/build-context"

	// SentinelFile signals the in-workload script that the context
	// transfer is complete and the build may start.
	SentinelFile = "BUILD_READY"
)

// Request is one accepted build invocation. Immutable once built.
type Request struct {
	Ref         *reference.Ref
	Username    string
	Token       string
	ContextRoot string
}

// ResourceSet names the cluster resources a build invocation touches.
// The workload name is a deterministic function of the image
// reference, so concurrent builds of the same reference collide;
// callers serialize those externally.
type ResourceSet struct {
	Namespace    string
	SecretName   string
	WorkloadName string
}

// ResourcesFor derives the resource names for a reference.
func ResourcesFor(ref *reference.Ref) ResourceSet {
	return ResourceSet{
		Namespace:    Namespace,
		SecretName:   SecretName,
		WorkloadName: "build-" + ref.Slug(),
	}
}

// Outcome is a state of the build lifecycle machine.
type Outcome string

const (
	OutcomePending      Outcome = "Pending"
	OutcomeWaitingReady Outcome = "WaitingReady"
	OutcomeTransferring Outcome = "Transferring"
	OutcomeTriggered    Outcome = "Triggered"
	OutcomeRunning      Outcome = "Running"
	OutcomeSucceeded    Outcome = "Succeeded"
	OutcomeFailed       Outcome = "Failed"
	OutcomeTimedOut     Outcome = "TimedOut"
)

// Terminal reports whether no further transitions occur.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeTimedOut:
		return true
	default:
		return false
	}
}

// Timeouts holds every polling interval and deadline of the lifecycle
// machine. Tests compress them to keep the suite fast.
type Timeouts struct {
	ReadinessInterval time.Duration
	ReadinessTimeout  time.Duration
	DeletionInterval  time.Duration
	DeletionTimeout   time.Duration
	MonitorInterval   time.Duration
	BuildTimeout      time.Duration
}

// DefaultTimeouts returns the production polling contract.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ReadinessInterval: 2 * time.Second,
		ReadinessTimeout:  120 * time.Second,
		DeletionInterval:  1 * time.Second,
		DeletionTimeout:   60 * time.Second,
		MonitorInterval:   5 * time.Second,
		BuildTimeout:      600 * time.Second,
	}
}

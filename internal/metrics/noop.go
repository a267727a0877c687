package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder.
// All methods are empty, providing zero overhead when metrics are disabled.
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordAuthorizationCreated(success bool)          {}
func (n *NoopMetrics) RecordAuthorizationDecision(decision string)      {}
func (n *NoopMetrics) RecordTokenPoll(result string)                    {}
func (n *NoopMetrics) RecordTokenIssued(generationTime time.Duration)   {}
func (n *NoopMetrics) RecordIdentityValidation(result string)           {}

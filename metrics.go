package portal

// Metrics receives counters for the policy layer.
type Metrics interface {
	InviteRedemption(result string)
	Transition(kind, status, result string)
	GuardDecision(decision string)
	AuditFailure()
}

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type noopMetrics struct{}

func (noopMetrics) InviteRedemption(string)          {}
func (noopMetrics) Transition(string, string, string) {}
func (noopMetrics) GuardDecision(string)              {}
func (noopMetrics) AuditFailure()                     {}

func normalizeMetrics(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

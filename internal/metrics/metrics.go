package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	policyChecksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_policy_checks_total",
		Help: "Total number of resolver lookups performed",
	})
	policyRestrictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_policy_restrictions_total",
		Help: "Total number of resolver lookups that returned a restriction",
	})
	engineCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_engine_cycles_total",
		Help: "Total number of completed batch cycles",
	})
	policiesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_policies_created_total",
		Help: "Total number of policies synthesized by the engine",
	})
	policiesExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_policies_expired_total",
		Help: "Total number of policies transitioned to Expired by the sweeper",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		policyChecksTotal,
		policyRestrictionsTotal,
		engineCyclesTotal,
		policiesCreatedTotal,
		policiesExpiredTotal,
	)
}

// IncPolicyCheck increments the resolver lookup counter.
func IncPolicyCheck() { policyChecksTotal.Inc() }

// IncPolicyRestriction increments the restriction-hit counter.
func IncPolicyRestriction() { policyRestrictionsTotal.Inc() }

// IncEngineCycle increments the completed batch cycle counter.
func IncEngineCycle() { engineCyclesTotal.Inc() }

// AddPoliciesCreated adds n to the synthesized policy counter.
func AddPoliciesCreated(n int) { policiesCreatedTotal.Add(float64(n)) }

// AddPoliciesExpired adds n to the swept policy counter.
func AddPoliciesExpired(n int) { policiesExpiredTotal.Add(float64(n)) }

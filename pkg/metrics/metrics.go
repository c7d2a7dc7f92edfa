package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "playvault", Name: "auth_tokens_issued_total", Help: "Number of access tokens issued by flow."},
		[]string{"flow"},
	)
	IssuanceFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "playvault", Name: "auth_issuance_failed_total", Help: "Number of issuance calls failed after a durable write, by flow."},
		[]string{"flow"},
	)
	RefreshRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "playvault", Name: "auth_refresh_rejected_total", Help: "Number of rejected refresh attempts by reason."},
		[]string{"reason"},
	)
	VerifyAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "playvault", Name: "auth_verify_accepted_total", Help: "Number of accepted bearer tokens."},
	)
	VerifyRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "playvault", Name: "auth_verify_rejected_total", Help: "Number of rejected bearer tokens by internal reason."},
		[]string{"reason"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "playvault", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "playvault", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(TokensIssued)
	reg.MustRegister(IssuanceFailed)
	reg.MustRegister(RefreshRejected)
	reg.MustRegister(VerifyAccepted)
	reg.MustRegister(VerifyRejected)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}

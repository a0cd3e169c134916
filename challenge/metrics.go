package challenge

import (
	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	issuedChallenges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lnurld_challenges_issued_total",
		Help: "Number of challenges issued by tag",
	}, []string{"tag"})

	consumedChallenges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lnurld_challenges_consumed_total",
		Help: "Number of consume attempts by tag and result",
	}, []string{"tag", "result"})

	sweptChallenges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lnurld_challenges_swept_total",
		Help: "Number of expired challenges removed from the store",
	})
)

func consumeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrAlreadyConsumed):
		return "already_consumed"
	default:
		return "error"
	}
}

package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fundings = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lnurld_channel_fundings_total",
	Help: "Number of channel funding attempts by result",
}, []string{"result"})

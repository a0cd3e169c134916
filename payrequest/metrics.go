package payrequest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var invoiceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lnurld_invoice_requests_total",
	Help: "Number of pay callback invoice requests by result",
}, []string{"result"})

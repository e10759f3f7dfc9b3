package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	asksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopback_ask_total",
		Help: "Questions asked, partitioned by outcome.",
	}, []string{"outcome"})

	ticketsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loopback_tickets_created_total",
		Help: "Tickets created, partitioned by whether they joined an existing cluster.",
	}, []string{"grouped"})

	broadcastResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loopback_broadcast_resolved_total",
		Help: "Tickets resolved through cluster broadcasts.",
	})

	knowledgeSearchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loopback_knowledge_searches_total",
		Help: "Knowledge base searches served.",
	})
)

// Package promcollector implements kcore.MetricsCollector on top of
// Prometheus client_golang.
//
//	reg := prometheus.NewRegistry()
//	mc, _ := promcollector.New(func(o *promcollector.Options) { o.Registerer = reg })
//	k, _ := kcore.Boot(ctx, cfg, kcore.WithMetrics(mc))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package promcollector

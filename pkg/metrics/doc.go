/*
Package metrics provides Prometheus metrics collection and exposition for
ukvdb.

It registers counters, gauges, and histograms against the default
Prometheus registry covering the ordered-set engine (reads, writes, scans,
per-collection cardinality), the transaction protocol (begins, conflicts,
commit latency), the arena (live block count), and each derived modality
(document gather duration, graph edge mutation counts, path bucket
collisions). Handler exposes these at /metrics via promhttp; HealthHandler,
ReadyHandler, and LivenessHandler in health.go expose process health for
"kv" and "server" components. Collector polls an *kv.Engine on an interval
to keep the per-collection cardinality gauge current between writes.
*/
package metrics

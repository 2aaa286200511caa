// Package metrics records crawl progress as Prometheus metrics.
//
// A Collector owns a private registry so several crawls in one process do
// not collide with the default registry. It implements crawler.Recorder and
// can write its state in the text exposition format, for example to a file
// picked up by the node_exporter textfile collector.
package metrics

// Package status collects the guards of a process in one Registry and
// reports them as a status Document, a health report and prometheus
// metrics.
//
//	reg := status.NewRegistry("worker", nil)
//	reg.AddLoop(ingest)
//	reg.SetSentinel(sentinel)
//	prometheus.MustRegister(status.NewCollector(reg))
package status

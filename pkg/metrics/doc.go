// Package metrics collects in-process timing samples per label and renders
// them as summaries or a text report.
//
//	c := metrics.NewCollector()
//	tok, _ := c.Start("install:git")
//	// ...
//	elapsed, _ := c.Stop("install:git", tok)
//	fmt.Print(c.Report())
//
// Samples live in memory only. To export them, pass a telemetry.Metrics as
// the Observer and every sample is also observed by a Prometheus histogram.
package metrics

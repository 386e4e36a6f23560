package reporter

// CompositeReporter fans every event out to a fixed set of Reporters, in
// the order given. Used to send the same events to a terminal and a log
// file at once.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter combines reporters into one.
func NewCompositeReporter(reporters ...Reporter) *CompositeReporter {
	return &CompositeReporter{reporters: reporters}
}

func (c *CompositeReporter) Hardware(s HardwareSummary) {
	for _, r := range c.reporters {
		r.Hardware(s)
	}
}

func (c *CompositeReporter) EncodingConfig(s EncodingConfigSummary) {
	for _, r := range c.reporters {
		r.EncodingConfig(s)
	}
}

func (c *CompositeReporter) DiscoveryFound(s ServerFoundSummary) {
	for _, r := range c.reporters {
		r.DiscoveryFound(s)
	}
}

func (c *CompositeReporter) EncodingStarted(totalFrames int) {
	for _, r := range c.reporters {
		r.EncodingStarted(totalFrames)
	}
}

func (c *CompositeReporter) EncodingProgress(p ProgressSnapshot) {
	for _, r := range c.reporters {
		r.EncodingProgress(p)
	}
}

func (c *CompositeReporter) WriterStats(s WriterSummary) {
	for _, r := range c.reporters {
		r.WriterStats(s)
	}
}

func (c *CompositeReporter) JobComplete(o JobOutcome) {
	for _, r := range c.reporters {
		r.JobComplete(o)
	}
}

func (c *CompositeReporter) Warning(message string) {
	for _, r := range c.reporters {
		r.Warning(message)
	}
}

func (c *CompositeReporter) Error(e ReporterError) {
	for _, r := range c.reporters {
		r.Error(e)
	}
}

func (c *CompositeReporter) Verbose(message string) {
	for _, r := range c.reporters {
		r.Verbose(message)
	}
}

package alloc

import "github.com/joshuapare/shmseg/internal/logger"

// Reporter receives conditions the allocator cannot return to its caller:
// failures of Alloc and Resize, invalid handles and corruption. The call
// panics after Report returns.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err error)

// Report calls f(err).
func (f ReporterFunc) Report(err error) { f(err) }

// LogReporter logs the failure at error level. It is the default.
var LogReporter Reporter = ReporterFunc(func(err error) {
	logger.Error("shared segment allocator failure", "err", err)
})

// fatal reports err and panics with it.
func (a *Allocator) fatal(err error) {
	a.reporter.Report(err)
	panic(err)
}

package main

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// newPrinter formats numbers with digit grouping. Segment sizes run to
// billions of bytes.
func newPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

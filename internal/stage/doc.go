// Package stage runs the build of one asset category: it resets the
// category's destination, enumerates its sources, applies the category's
// declarative transform pipeline and writes the results. When the profile
// enables live reload, the configured Notifier is told once per successful
// run, after every output has been written.
package stage

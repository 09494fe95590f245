// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

// ErrClassifier maps errors to categorical labels for structured logs.
//
// Labels are short strings such as "ETIMEDOUT" or "ECONNRESET" that make
// connection failures aggregatable across many channel bootstraps.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface,
// which is how the errclass package plugs in:
//
//	cfg.ErrClassifier = ErrClassifierFunc(errclass.New)
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier is a no-op classifier that returns an empty string.
var DefaultErrClassifier = ErrClassifierFunc(func(error) string { return "" })

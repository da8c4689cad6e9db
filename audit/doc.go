// Package audit provides append-only recording of dispatch decisions.
//
// Every dispatch produces exactly one Record: the envelope's identity, each
// handler's individual verdict in evaluation order, and the final reduced
// verdict. Records flow into a Sink. The built-in sinks are FileSink (one
// JSON record per line, writes serialized so each record's bytes stay
// contiguous), MemorySink (tests and introspection), NopSink, and AsyncSink
// (a buffered wrapper that moves sink latency off the dispatch path).
//
// A sink failure never fails dispatch; the dispatcher logs it and the
// default-safe decision still reaches the caller.
package audit

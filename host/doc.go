// Package host exposes the dispatcher over a line-delimited JSON wire.
// Each request line carries an event; each response line carries the
// final decision. The host never reports abstention: an abstained final
// verdict leaves on the wire as an allow.
package host

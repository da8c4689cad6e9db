// Package command runs external programs as event handlers. Each
// evaluation pipes the envelope to the command's stdin as JSON and reads
// an optional verdict from its stdout. A non-zero exit denies; an empty
// stdout with a zero exit abstains.
package command

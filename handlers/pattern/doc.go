// Package pattern provides rule-based policy handlers built from literal
// substring lists and regular expressions.
//
// A Rule matches a payload field (addressed by gjson path) against its
// configured patterns and emits a fixed decision when anything matches;
// otherwise the handler abstains. Rules generalize the one-off substring
// checks that ad-hoc hook scripts reimplement: the common "block dangerous
// shell commands" check is a Rule over the "command" field with a literal
// list, available ready-made via DangerousCommands.
package pattern

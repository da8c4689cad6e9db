// Package script provides Lua-scripted policy handlers.
//
// A script exposes a global evaluate function receiving the envelope as a
// table:
//
//	function evaluate(env)
//	  if string.find(env.payload.command or "", "curl", 1, true) then
//	    return { decision = "ask", reason_for_user = "Network access requested" }
//	  end
//	  return { decision = "abstain" }
//	end
//
// The returned table maps onto a verdict: decision (required),
// reason_for_user, reason_for_agent, continue_session, and mutated_payload
// (a table re-encoded as the payload rewrite). Returning nil abstains.
//
// gopher-lua states are not goroutine-safe, so each handler serializes
// evaluations through a mutex and propagates the dispatcher's context into
// the state, which bounds runaway scripts by the per-handler timeout.
// Script errors and malformed results become contained handler failures,
// never dispatch failures.
package script

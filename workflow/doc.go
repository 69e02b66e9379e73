// Package workflow runs named, multi-step workflows on top of the router.
//
// A Definition lists preconditions and an ordered set of steps. Engine.Execute
// evaluates every precondition before an execution record exists, then routes
// each step in order, feeding earlier step results into later requests through
// ${steps.<id>} and ${params.<key>} references.
//
// Executions are kept until Evict is called. Cancel is cooperative: a step
// that is already in flight finishes, its result is discarded, and no later
// step starts.
package workflow

// Package expand implements the Expansion Planner (spec §4.7): a
// breadth-first walk over a symbol's children or parents, one level
// per operator character in an expansion string, stopping either
// when there is nothing left to visit or when a caller-configured
// character cap is reached.
package expand

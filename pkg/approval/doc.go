// Package approval implements the approval workflow state machine for
// risk-gated optimization actions.
//
// Each submitted action is routed to a required approval authority
// (SYSTEM up through EXECUTIVE) based on its risk level, its estimated
// savings, and its resource tags. Low-stakes actions auto-approve with a
// single SYSTEM step; everything else waits on human decisions, with a
// deadline that a periodic sweep enforces. A timed-out workflow is
// escalated one rung up the ladder while escalations remain, then
// expires. All workflow state is persisted, so the machine survives
// process restarts.
package approval

// Package dispatch implements labeld's task distribution core: drawing
// datapoints and flagged questions from the two priority queues, recording
// submitted answers, promoting ambiguous questions from the multiple-choice
// stage into free-text review, reclaiming abandoned assignments when their
// leases lapse, and notifying the downstream consensus service when a
// datapoint's answers are complete.
package dispatch

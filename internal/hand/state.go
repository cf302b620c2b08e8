package hand

// trackingState is the part of a point driven by the in-range test.
type trackingState struct {
	Status    TrackingStatus
	Probation Probation
}

// nextTrackingState applies one in-range test result. It reports whether
// probation failed on this step, which also moves the point to Lost.
//
// Dead is absorbing. A valid result marks the point Tracking and, for active
// points, clears the failure count. An invalid result enters probation (if
// not already in it) and counts a failure. While in probation, too many
// failures lose the point, and probation ends after ProbationFrameCount
// frames or on failure.
func nextTrackingState(st trackingState, pointType PointType, validInRange bool, s Settings) (trackingState, bool) {
	if st.Status == Dead {
		return st, false
	}

	if validInRange {
		st.Status = Tracking
		if pointType == ActivePoint {
			st.Probation.FailedTests = 0
		}
	} else {
		st.Probation = st.Probation.start()
		st.Probation.FailedTests++
	}

	if !st.Probation.Active {
		return st, false
	}

	failed := false
	switch pointType {
	case ActivePoint:
		failed = st.Probation.FailedTests >= s.MaxFailedTestsInProbationActivePoints
	case CandidatePoint:
		failed = st.Probation.FailedTests >= s.MaxFailedTestsInProbation
	}
	if failed {
		st.Status = Lost
	}

	st.Probation.FrameCount++
	if st.Probation.FrameCount > s.ProbationFrameCount || failed {
		st.Probation = st.Probation.end()
	}
	return st, failed
}

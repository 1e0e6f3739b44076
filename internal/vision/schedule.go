package vision

// ShouldProcess reports whether the frame at frameIndex falls on the
// processing cadence. With skip n, every n-th frame starting from frame zero
// is processed; skip values below 2 process every frame. The decision is a
// pure function of its inputs so a restarted pipeline lands on the same
// cadence.
func ShouldProcess(frameIndex int64, skip int) bool {
	if skip <= 1 {
		return true
	}
	return frameIndex%int64(skip) == 0
}

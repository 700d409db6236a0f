package attest

// Cancel stops the harness context, as an interrupted run would.
func (do *Do) Cancel() {
	do.cancel()
}

var Observation = observation

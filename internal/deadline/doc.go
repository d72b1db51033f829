// Package deadline races an operation against a timer.
//
// Capability initialization and encryption can hang indefinitely, so every
// call into them goes through Race. The first of the two to settle decides
// the outcome. The losing operation has its context cancelled and its late
// result, if any, is dropped on the floor.
//
//	enc, err := deadline.Race(ctx, "encrypt", 30*time.Second, builder.Encrypt)
//	if errors.Is(err, deadline.ErrTimeout) {
//	    // surfaced to the user as a failed encryption
//	}
package deadline

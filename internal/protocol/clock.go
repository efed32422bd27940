package protocol

import "time"

// Clock supplies the instant against which relative time fields are
// resolved. Parsers take the instant explicitly; facades hold a Clock so
// tests can pin it.
type Clock func() time.Time

// SystemClock is the wall clock.
var SystemClock Clock = time.Now

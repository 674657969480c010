package usecase

import "time"

// nowFunc is indirected so tests can pin time without sleeping through a
// real hold duration.
var nowFunc = time.Now

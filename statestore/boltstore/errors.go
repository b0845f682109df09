package boltstore

import "github.com/zeebo/errs"

// Error is the error class for all boltstore failures, following the
// teacher's zeebo/errs convention of one Class per package.
var Error = errs.Class("boltstore")

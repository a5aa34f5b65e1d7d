// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package killswitch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/runetale/killswitch/types/family"
)

// ErrBusy is returned when an operation is invoked while another one is
// still in flight. Callers must not assume concurrent calls interleave
// safely, since all of them manipulate the same per-family profile pair.
var ErrBusy = errors.New("kill switch operation already in flight")

// ProbeError reports that the host capability detection failed. Callers
// treat it as "capability disabled".
type ProbeError struct {
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("capability probe failed: %v", e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ProfileCreateError wraps a failure to register a blackhole profile with
// the network configuration service.
type ProfileCreateError struct {
	Family family.Family
	Err    error
}

func (e *ProfileCreateError) Error() string {
	return fmt.Sprintf("failed to create %s kill switch profile, because %v", e.Family, e.Err)
}

func (e *ProfileCreateError) Unwrap() error { return e.Err }

// ProfileActivateError wraps a failure to activate a registered profile.
type ProfileActivateError struct {
	Family family.Family
	Err    error
}

func (e *ProfileActivateError) Error() string {
	return fmt.Sprintf("failed to activate %s kill switch profile, because %v", e.Family, e.Err)
}

func (e *ProfileActivateError) Unwrap() error { return e.Err }

// ProfileDeleteError wraps a failure to delete a managed profile.
type ProfileDeleteError struct {
	Family family.Family
	Err    error
}

func (e *ProfileDeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s kill switch profile, because %v", e.Family, e.Err)
}

func (e *ProfileDeleteError) Unwrap() error { return e.Err }

// TimeoutError reports that a call into the network configuration service
// did not complete within the bounded time. A timeout is not a definitive
// failure: the operation may still have taken effect, so the next
// reconciliation must re-query actual state instead of trusting the
// timed-out call's assumed outcome.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// PartialFailureError is returned from Enable/Update when some but not
// all target families could be set up. Profiles created during the failed
// call have already been rolled back.
type PartialFailureError struct {
	Families []family.Family
	Errs     []error
}

func (e *PartialFailureError) Error() string {
	fams := make([]string, len(e.Families))
	for i, f := range e.Families {
		fams[i] = f.String()
	}
	return fmt.Sprintf("kill switch enable failed for %s: %v", strings.Join(fams, ", "), errors.Join(e.Errs...))
}

func (e *PartialFailureError) Unwrap() []error { return e.Errs }

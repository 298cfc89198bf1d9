package surge

import (
	"regexp"
	"strconv"
	"sync"
)

// ResumeInfo is present iff both fields are non-empty; it is used to
// request resume on reconnect (spec.md section 3). Cleared by explicit
// user close, by a failed/closed terminal transition that is not
// resumable, or by server rejection of resume.
type ResumeInfo struct {
	Key                  string
	LastConnectionSerial int64
}

// recoverPattern matches the user-supplied "recover" option:
// "<recoverKey>:<connectionSerial>" (spec.md section 3).
var recoverPattern = regexp.MustCompile(`^([A-Za-z0-9_-]+):(-?[A-Za-z0-9]+)$`)

// RecoverInfo is parsed from the "recover" option and consumed at most
// once (spec.md section 3).
type RecoverInfo struct {
	RecoverKey string
	Serial     int64
}

// ParseRecoverInfo parses raw against the spec.md regex. An empty raw
// string is not an error; it simply yields (nil, nil) meaning "no
// recover requested".
func ParseRecoverInfo(raw string) (*RecoverInfo, error) {
	if raw == "" {
		return nil, nil
	}
	m := recoverPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, NewError(InvalidArgument, "malformed recover option: "+raw)
	}
	serial, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil, NewError(InvalidArgument, "malformed recover serial: "+raw)
	}
	return &RecoverInfo{RecoverKey: m[1], Serial: serial}, nil
}

// RecoveryKey formats "{key}:{serial}" per spec.md section 6, or "" if r
// is nil — P6: recoveryKey is non-empty iff key and serial are both set.
func (r *ResumeInfo) RecoveryKey() string {
	if r == nil || r.Key == "" {
		return ""
	}
	return r.Key + ":" + strconv.FormatInt(r.LastConnectionSerial, 10)
}

// ConnectionIdentity is the (id, key) pair the server assigns in a
// Connected frame (spec.md section 3). Present only while the server has
// acknowledged a Connected frame and not yet failed or reset.
type ConnectionIdentity struct {
	ID  string
	Key string
}

// recoveryState tracks the one-shot RecoverInfo, the live ResumeInfo, and
// the server-assigned ConnectionIdentity for a connection, guarded by a
// single mutex since they're always read and mutated together from the
// manager/facade.
type recoveryState struct {
	mu       sync.Mutex
	resume   *ResumeInfo
	recover  *RecoverInfo
	identity *ConnectionIdentity
	consumed bool
}

func newRecoveryState(initial *RecoverInfo) *recoveryState {
	return &recoveryState{recover: initial}
}

// TakeRecover returns the RecoverInfo to use for the next connect
// attempt, if any is still armed, WITHOUT consuming it — consumption
// happens explicitly via DisableRecover once a connect attempt reaches a
// terminal-for-recovery state (Connected, Closed, Failed), per spec.md
// section 3 and scenario 3. A second SetRecover call after disable is a
// no-op (see DESIGN.md Open Question decision), not an error.
func (rs *recoveryState) TakeRecover() *RecoverInfo {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.consumed {
		return nil
	}
	return rs.recover
}

// DisableRecover marks the recover option as consumed; subsequent
// TakeRecover calls return nil.
func (rs *recoveryState) DisableRecover() {
	rs.mu.Lock()
	rs.consumed = true
	rs.mu.Unlock()
}

// SetRecover installs a new RecoverInfo request. If recover has already
// been consumed, this is silently ignored (Open Question decision).
func (rs *recoveryState) SetRecover(r *RecoverInfo) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.consumed {
		return
	}
	rs.recover = r
}

// Resume returns the current ResumeInfo, or nil.
func (rs *recoveryState) Resume() *ResumeInfo {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.resume
}

// SetResume installs or clears the ResumeInfo.
func (rs *recoveryState) SetResume(r *ResumeInfo) {
	rs.mu.Lock()
	rs.resume = r
	rs.mu.Unlock()
}

// UpdateLastConnectionSerial updates ResumeInfo.LastConnectionSerial if a
// ResumeInfo is present (spec.md 4.5 rule 1).
func (rs *recoveryState) UpdateLastConnectionSerial(serial int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.resume != nil {
		rs.resume.LastConnectionSerial = serial
	}
}

// ClearResume drops the ResumeInfo, e.g. on explicit close or
// unresumable terminal transition (spec.md section 3).
func (rs *recoveryState) ClearResume() {
	rs.mu.Lock()
	rs.resume = nil
	rs.mu.Unlock()
}

// Identity returns the server-assigned ConnectionIdentity, or nil before
// the first acknowledged Connected frame.
func (rs *recoveryState) Identity() *ConnectionIdentity {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.identity
}

// SetIdentity installs the (id, key) pair from a Connected frame.
func (rs *recoveryState) SetIdentity(id, key string) {
	rs.mu.Lock()
	rs.identity = &ConnectionIdentity{ID: id, Key: key}
	rs.mu.Unlock()
}

// ClearIdentity drops the identity on a failed/closed terminal
// transition (spec.md section 3, ConnectionIdentity lifetime).
func (rs *recoveryState) ClearIdentity() {
	rs.mu.Lock()
	rs.identity = nil
	rs.mu.Unlock()
}

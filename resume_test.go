package surge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRecoverInfoValid(t *testing.T) {
	r, err := ParseRecoverInfo("abc123:42")
	require.NoError(t, err)
	require.Equal(t, "abc123", r.RecoverKey)
	require.Equal(t, int64(42), r.Serial)
}

func TestParseRecoverInfoEmptyIsNotAnError(t *testing.T) {
	r, err := ParseRecoverInfo("")
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestParseRecoverInfoMalformed(t *testing.T) {
	_, err := ParseRecoverInfo("not-a-valid-format")
	require.Error(t, err)
}

func TestRecoveryKeyEmptyUntilResumeSet(t *testing.T) {
	var r *ResumeInfo
	require.Equal(t, "", r.RecoveryKey())

	r = &ResumeInfo{Key: "abc", LastConnectionSerial: 7}
	require.Equal(t, "abc:7", r.RecoveryKey())
}

func TestRecoveryStateConsumesRecoverOnce(t *testing.T) {
	rs := newRecoveryState(&RecoverInfo{RecoverKey: "abc", Serial: 1})

	require.NotNil(t, rs.TakeRecover())
	rs.DisableRecover()
	require.Nil(t, rs.TakeRecover())

	rs.SetRecover(&RecoverInfo{RecoverKey: "xyz", Serial: 2})
	require.Nil(t, rs.TakeRecover(), "a second recover set after disable must stay a no-op")
}

func TestRecoveryStateUpdateLastConnectionSerial(t *testing.T) {
	rs := newRecoveryState(nil)
	rs.SetResume(&ResumeInfo{Key: "abc", LastConnectionSerial: 0})
	rs.UpdateLastConnectionSerial(9)
	require.Equal(t, int64(9), rs.Resume().LastConnectionSerial)
}

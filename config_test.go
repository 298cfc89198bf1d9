package surge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientOptionsValidateRequiresExactlyOneAuth(t *testing.T) {
	err := (&ClientOptions{}).Validate()
	require.Error(t, err, "no auth configured must fail")

	err = (&ClientOptions{Key: "k", Token: "t"}).Validate()
	require.Error(t, err, "two auth methods must fail")

	err = (&ClientOptions{Key: "k"}).Validate()
	require.NoError(t, err)
}

func TestClientOptionsValidateRejectsWildcardClientID(t *testing.T) {
	err := (&ClientOptions{Key: "k", ClientID: "*"}).Validate()
	require.Error(t, err)
}

func TestClientOptionsDefaults(t *testing.T) {
	opts := &ClientOptions{Key: "k"}
	require.True(t, opts.tlsEnabled())
	require.True(t, opts.echoMessages())

	tlsOff := false
	opts.TLS = &tlsOff
	require.False(t, opts.tlsEnabled())
}

func TestStaticAuthenticatorParams(t *testing.T) {
	a := &StaticAuthenticator{Key: "secret"}
	v, err := a.Params(context.Background())
	require.NoError(t, err)
	require.Equal(t, "secret", v.Get("key"))
}

func TestURLAuthenticatorFetchesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tok-123\n"))
	}))
	defer srv.Close()

	a := &URLAuthenticator{URL: srv.URL}
	v, err := a.Params(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-123", v.Get("access_token"))
}

func TestURLAuthenticatorRejectionIsPermanent(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a := &URLAuthenticator{URL: srv.URL, MaxRetryCount: 3}
	_, err := a.Params(context.Background())
	require.ErrorIs(t, err, NewError(AuthFailure))
	require.Equal(t, 1, hits, "a credential rejection must not be retried")
}

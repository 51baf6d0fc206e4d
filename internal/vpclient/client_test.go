package vpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vpatient/internal/domain"
)

type recorded struct {
	method      string
	path        string
	contentType string
	user        string
	body        string
}

func newRecordingServer(t *testing.T, status int, reply string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.contentType = r.Header.Get("Content-Type")
		rec.user = r.Header.Get(UserHeader)
		b, _ := io.ReadAll(r.Body)
		rec.body = string(b)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNewClient_RejectsRelativeBaseURL(t *testing.T) {
	_, err := NewClient("/activity")
	require.ErrorContains(t, err, "must be absolute")
}

func TestNewClient_OptionsApplied(t *testing.T) {
	hc := &http.Client{Timeout: 123 * time.Millisecond}
	c, err := NewClient("http://localhost:8000/", WithHTTPClient(hc))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", c.BaseURL)
	require.Same(t, hc, c.HTTPClient)
}

func TestSave_SendsUserHeader(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, "")
	c, err := NewClient(srv.URL, WithUser("trainee-1"))
	require.NoError(t, err)

	require.NoError(t, c.Save(context.Background(), "42", "{}"))
	require.Equal(t, "trainee-1", rec.user)

	anon, err := NewClient(srv.URL)
	require.NoError(t, err)
	require.NoError(t, anon.Save(context.Background(), "42", "{}"))
	require.Empty(t, rec.user)
}

func TestPaths(t *testing.T) {
	require.Equal(t, "/activity/virtualpatient/save/42/", SavePath("42"))
	require.Equal(t, "/activity/virtualpatient/navigate/5/42/", NavigatePath("5", "42"))
	require.Equal(t, "/activity/virtualpatient/save/a%2Fb/", SavePath("a/b"))
}

func TestEncodeState_SingleJSONField(t *testing.T) {
	require.Equal(t, "json=%7B%22step%22%3A1%7D", EncodeState(`{"step":1}`))
	require.Equal(t, "json=", EncodeState(""))
}

func TestSave_PostsFormBody(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, "")
	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	require.NoError(t, c.Save(context.Background(), "42", `{"step":1}`))
	require.Equal(t, http.MethodPost, rec.method)
	require.Equal(t, "/activity/virtualpatient/save/42/", rec.path)
	require.Equal(t, "application/x-www-form-urlencoded", rec.contentType)
	require.Equal(t, "json=%7B%22step%22%3A1%7D", rec.body)
}

func TestSave_ServerErrorIsTransportError(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusInternalServerError, "boom")
	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	err = c.Save(context.Background(), "42", "{}")
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, http.StatusInternalServerError, te.StatusCode)
	require.Equal(t, "save", te.Op)
}

func TestSave_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(base)
	require.NoError(t, err)
	err = c.Save(context.Background(), "42", "{}")
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	require.Zero(t, te.StatusCode)
	require.Error(t, te.Err)
}

func TestNavigate_ReturnsRedirect(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, `{"redirect":"/activity/virtualpatient/page/6/"}`)
	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := c.Navigate(context.Background(), "5", "42", `{"step":2}`)
	require.NoError(t, err)
	require.Equal(t, "/activity/virtualpatient/page/6/", resp.Redirect)
	require.Equal(t, "/activity/virtualpatient/navigate/5/42/", rec.path)
	require.Equal(t, "json=%7B%22step%22%3A2%7D", rec.body)
}

func TestNavigate_MalformedResponses(t *testing.T) {
	for name, reply := range map[string]string{
		"not json":         `<html>oops</html>`,
		"missing redirect": `{"status":"ok"}`,
		"empty redirect":   `{"redirect":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := newRecordingServer(t, http.StatusOK, reply)
			c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
			require.NoError(t, err)

			_, err = c.Navigate(context.Background(), "5", "42", "{}")
			var me *domain.MalformedResponseError
			require.ErrorAs(t, err, &me)
			require.Equal(t, reply, me.Body)
		})
	}
}

func TestNavigate_StatusErrorIsTransportError(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusForbidden, `{"redirect":"/x/"}`)
	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Navigate(context.Background(), "5", "42", "{}")
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, http.StatusForbidden, te.StatusCode)
	require.False(t, errors.As(err, new(*domain.MalformedResponseError)))
}

func TestNavigate_ContextCanceled(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusOK, `{"redirect":"/x/"}`)
	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Navigate(ctx, "5", "42", "{}")
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	require.ErrorIs(t, err, context.Canceled)
}

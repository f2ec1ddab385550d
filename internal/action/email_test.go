package action

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailConfig_Validate(t *testing.T) {
	assert.NoError(t, EmailConfig{}.Validate())
	assert.ErrorIs(t, EmailConfig{Enabled: true}.Validate(), ErrKeyMissing)
	assert.ErrorIs(t, EmailConfig{Enabled: true, SendgridAPIKey: "SG.x"}.Validate(), ErrInvalidMailSender)
	assert.ErrorIs(t, EmailConfig{Enabled: true, SendgridAPIKey: "SG.x", From: "a@b.c"}.Validate(), ErrInvalidMailRecipient)
	assert.NoError(t, EmailConfig{Enabled: true, SendgridAPIKey: "SG.x", From: "a@b.c", To: "ops@b.c"}.Validate())
}

func TestEmail_Sends(t *testing.T) {
	type captured struct {
		auth string
		body string
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		got <- captured{auth: r.Header.Get("Authorization"), body: string(data)}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	e, err := NewEmail(EmailConfig{Enabled: true, SendgridAPIKey: "SG.test", From: "bridgemon@example.com", To: "ops@example.com"})
	require.NoError(t, err)
	e.baseURL = srv.URL + "/v3/mail/send"

	require.NoError(t, e.Run(context.Background(), testEvent(KindAlert)))

	c := <-got
	assert.Equal(t, "Bearer SG.test", c.auth)
	assert.Contains(t, c.body, "ops@example.com")
	assert.Contains(t, c.body, "2 consecutive failures")
}

func TestEmail_RejectedBySendgrid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	t.Cleanup(srv.Close)

	e, err := NewEmail(EmailConfig{Enabled: true, SendgridAPIKey: "SG.bad", From: "a@example.com", To: "b@example.com"})
	require.NoError(t, err)
	e.baseURL = srv.URL

	assert.Error(t, e.Run(context.Background(), testEvent(KindAlert)))
}

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mailerSendEmailURL = "https://api.mailersend.com/v1/email"

func TestMailerSendPostsMessage(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var body map[string]any
	httpmock.RegisterResponder(http.MethodPost, mailerSendEmailURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
		})

	s := NewMailerSend("test-key")
	err := s.SendMail(context.Background(), Mail{
		From:     "noreply@example.com",
		FromName: "Classbook",
		To:       []string{"ana@example.com"},
		Subject:  "Booking requested",
		Body:     "See you there",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, "Booking requested", body["subject"])
	assert.Equal(t, "See you there", body["text"])
}

func TestMailerSendReportsRejection(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, mailerSendEmailURL,
		httpmock.NewJsonResponderOrPanic(http.StatusUnprocessableEntity, map[string]any{
			"message": "The from.email must be verified.",
		}))

	err := NewMailerSend("test-key").SendMail(context.Background(), Mail{
		From:    "noreply@example.com",
		To:      []string{"ana@example.com"},
		Subject: "x",
		Body:    "y",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailersend")
}

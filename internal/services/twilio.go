package services

import (
	"fmt"
	"log"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioService sends WhatsApp messages via Twilio. It is the production
// MessageSender used by both the engine's node sends and the follow-up poller.
type TwilioService struct {
	client *twilio.RestClient
	from   string // Format: "whatsapp:+14155238886"
}

// NewTwilioService creates a Twilio-backed sender from environment credentials.
func NewTwilioService() (*TwilioService, error) {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_WHATSAPP_FROM")

	if accountSid == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})

	return &TwilioService{
		client: client,
		from:   from,
	}, nil
}

// SendMessage sends a text message and returns the Twilio message SID.
// channelConnectionID is unused with a single shared Twilio number.
func (t *TwilioService) SendMessage(channelConnectionID uint, recipient, content string, isFromBot bool) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(fmt.Sprintf("whatsapp:%s", recipient))
	params.SetBody(content)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send WhatsApp message: %v", err)
		return "", err
	}

	log.Printf("✅ WhatsApp message sent! SID: %s", *resp.Sid)
	return *resp.Sid, nil
}

// SendMedia sends a media message with an optional caption and returns the
// Twilio message SID.
func (t *TwilioService) SendMedia(channelConnectionID uint, recipient, mediaType, mediaURL, caption string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(fmt.Sprintf("whatsapp:%s", recipient))
	params.SetMediaUrl([]string{mediaURL})
	if caption != "" {
		params.SetBody(caption)
	}

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send WhatsApp media (%s): %v", mediaType, err)
		return "", err
	}

	log.Printf("✅ WhatsApp media sent! SID: %s", *resp.Sid)
	return *resp.Sid, nil
}

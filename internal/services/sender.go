package services

// MessageSender is the channel-send capability. The engine emits send requests
// through it and never knows how a message reaches the wire; Twilio WhatsApp
// is one implementation, test doubles are another.
type MessageSender interface {
	// SendMessage delivers a text message and returns the provider message id.
	SendMessage(channelConnectionID uint, recipient, content string, isFromBot bool) (string, error)

	// SendMedia delivers a media message (image/video/audio/document) with an
	// optional caption and returns the provider message id.
	SendMedia(channelConnectionID uint, recipient, mediaType, mediaURL, caption string) (string, error)
}

package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/rivo/uniseg"
	"github.com/sunshineplan/imgconv"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/apointly/whatsapp-service/internal/storage"
	"github.com/apointly/whatsapp-service/pkg/env"
	"github.com/apointly/whatsapp-service/pkg/log"
	"github.com/apointly/whatsapp-service/pkg/validation"
)

const maxMessageGraphemes = 4096

// authenticatedClient returns the live handle for the session only when the
// session is marked authenticated in the store.
func (m *Manager) authenticatedClient(sessionID string) (*whatsmeow.Client, error) {
	sess, ok := m.store.GetSessionByID(sessionID)
	if !ok || !sess.IsAuthenticated {
		return nil, ErrNotConnected
	}
	client := m.client(sessionID)
	if client == nil || !client.IsConnected() || !client.IsLoggedIn() {
		return nil, ErrNotConnected
	}
	return client, nil
}

func (m *Manager) limiter(sessionID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	limiter, ok := m.limiters[sessionID]
	if !ok {
		limiter = rate.NewLimiter(m.sendRate, 1)
		m.limiters[sessionID] = limiter
	}
	return limiter
}

// SendMessage delivers a plain text message through the session's client.
// The message is recorded as pending before the network attempt and moves to
// sent or failed afterwards.
func (m *Manager) SendMessage(ctx context.Context, sessionID string, number string, text string) (storage.Message, error) {
	client, err := m.authenticatedClient(sessionID)
	if err != nil {
		return storage.Message{}, err
	}

	if strings.TrimSpace(text) == "" {
		return storage.Message{}, errors.New("message body cannot be empty")
	}
	if uniseg.GraphemeClusterCount(text) > maxMessageGraphemes {
		return storage.Message{}, errors.New("message body is too long")
	}

	normalized := validation.NormalizePhone(number)
	if err := validation.ValidatePhone(normalized); err != nil {
		return storage.Message{}, err
	}

	if err := m.limiter(sessionID).Wait(ctx); err != nil {
		return storage.Message{}, err
	}

	msg := m.store.CreateMessage(normalized, text)

	remoteJID := types.NewJID(normalized, types.DefaultUserServer)
	msgExtra := whatsmeow.SendRequestExtra{ID: client.GenerateMessageID()}
	msgContent := &waE2E.Message{Conversation: proto.String(text)}

	if _, err := client.SendMessage(ctx, remoteJID, msgContent, msgExtra); err != nil {
		m.store.UpdateMessageStatus(msg.ID, storage.StatusFailed)
		log.SessionOp(sessionID, "send").WithError(err).Error("Failed to send message")
		msg.Status = storage.StatusFailed
		return msg, err
	}

	m.store.UpdateMessageStatus(msg.ID, storage.StatusSent)
	msg.Status = storage.StatusSent
	log.SessionOp(sessionID, "send").WithField("message_id", msg.ID).Info("Message sent")
	return msg, nil
}

// SendImage uploads image bytes and delivers them with an optional caption.
// webp conversion and width compression are controlled by environment flags.
func (m *Manager) SendImage(ctx context.Context, sessionID string, number string, imageBytes []byte, imageType string, caption string) (storage.Message, error) {
	client, err := m.authenticatedClient(sessionID)
	if err != nil {
		return storage.Message{}, err
	}

	if len(imageBytes) == 0 {
		return storage.Message{}, errors.New("image payload cannot be empty")
	}

	normalized := validation.NormalizePhone(number)
	if err := validation.ValidatePhone(normalized); err != nil {
		return storage.Message{}, err
	}

	if imageType == "image/webp" && env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_CONVERT_WEBP", false) {
		decoded, err := imgconv.Decode(bytes.NewReader(imageBytes))
		if err != nil {
			return storage.Message{}, errors.New("failed to decode webp image")
		}
		encoded := new(bytes.Buffer)
		if err := imgconv.Write(encoded, decoded, &imgconv.FormatOption{Format: imgconv.PNG}); err != nil {
			return storage.Message{}, errors.New("failed to convert webp image")
		}
		imageBytes = encoded.Bytes()
		imageType = "image/png"
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_COMPRESSION", false) {
		decoded, err := imgconv.Decode(bytes.NewReader(imageBytes))
		if err != nil {
			return storage.Message{}, errors.New("failed to decode image for compression")
		}
		encoded := new(bytes.Buffer)
		if err := imgconv.Write(encoded,
			imgconv.Resize(decoded, &imgconv.ResizeOption{Width: 1024}),
			&imgconv.FormatOption{}); err != nil {
			return storage.Message{}, errors.New("failed to compress image")
		}
		imageBytes = encoded.Bytes()
	}

	thumbDecoded, err := imgconv.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return storage.Message{}, errors.New("failed to decode image for thumbnail")
	}
	thumbEncoded := new(bytes.Buffer)
	if err := imgconv.Write(thumbEncoded,
		imgconv.Resize(thumbDecoded, &imgconv.ResizeOption{Width: 72}),
		&imgconv.FormatOption{Format: imgconv.JPEG}); err != nil {
		return storage.Message{}, errors.New("failed to encode image thumbnail")
	}

	if err := m.limiter(sessionID).Wait(ctx); err != nil {
		return storage.Message{}, err
	}

	msg := m.store.CreateMessage(normalized, caption)

	imageUploaded, err := client.Upload(ctx, imageBytes, whatsmeow.MediaImage)
	if err != nil {
		m.store.UpdateMessageStatus(msg.ID, storage.StatusFailed)
		msg.Status = storage.StatusFailed
		return msg, errors.New("failed to upload image to WhatsApp servers")
	}
	thumbUploaded, err := client.Upload(ctx, thumbEncoded.Bytes(), whatsmeow.MediaLinkThumbnail)
	if err != nil {
		m.store.UpdateMessageStatus(msg.ID, storage.StatusFailed)
		msg.Status = storage.StatusFailed
		return msg, errors.New("failed to upload image thumbnail to WhatsApp servers")
	}

	remoteJID := types.NewJID(normalized, types.DefaultUserServer)
	msgExtra := whatsmeow.SendRequestExtra{ID: client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:                 proto.String(imageUploaded.URL),
			DirectPath:          proto.String(imageUploaded.DirectPath),
			Mimetype:            proto.String(imageType),
			Caption:             proto.String(caption),
			FileLength:          proto.Uint64(imageUploaded.FileLength),
			FileSHA256:          imageUploaded.FileSHA256,
			FileEncSHA256:       imageUploaded.FileEncSHA256,
			MediaKey:            imageUploaded.MediaKey,
			JPEGThumbnail:       thumbEncoded.Bytes(),
			ThumbnailDirectPath: &thumbUploaded.DirectPath,
			ThumbnailSHA256:     thumbUploaded.FileSHA256,
			ThumbnailEncSHA256:  thumbUploaded.FileEncSHA256,
		},
	}

	if _, err := client.SendMessage(ctx, remoteJID, msgContent, msgExtra); err != nil {
		m.store.UpdateMessageStatus(msg.ID, storage.StatusFailed)
		log.SessionOp(sessionID, "send-image").WithError(err).Error("Failed to send image")
		msg.Status = storage.StatusFailed
		return msg, err
	}

	m.store.UpdateMessageStatus(msg.ID, storage.StatusSent)
	msg.Status = storage.StatusSent
	log.SessionOp(sessionID, "send-image").WithField("message_id", msg.ID).Info("Image sent")
	return msg, nil
}

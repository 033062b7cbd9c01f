package types

import (
	"github.com/apointly/whatsapp-service/internal/storage"
)

type DataAuthInit struct {
	Success         bool   `json:"success"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	QRCode          string `json:"qrCode,omitempty"`
}

type DataConnectionStatus struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	QRCode          string `json:"qrCode,omitempty"`
}

type DataSendMessage struct {
	MessageID string `json:"messageId"`
}

type DataMessages struct {
	Messages []storage.Message `json:"messages"`
	Total    int               `json:"total"`
}

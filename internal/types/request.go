package types

type RequestInitAuth struct {
	SessionID  string `json:"sessionId" query:"sessionId" form:"sessionId"`
	WebhookURL string `json:"webhookUrl" query:"webhookUrl" form:"webhookUrl"`
}

type RequestSessionID struct {
	SessionID string `json:"sessionId" query:"sessionId" form:"sessionId"`
}

type RequestSendMessage struct {
	SessionID string `json:"sessionId"`
	Number    string `json:"number"`
	Message   string `json:"message"`
}

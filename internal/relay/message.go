package relay

// Message is one delivered direct message. The recipient is implicit:
// a Message only ever travels down the recipient's own connection.
//
// The wire form is exactly this JSON object; it is shared with browser
// clients and must stay stable.
type Message struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// Client is a reserved identity: a display name plus the opaque session
// token that authenticates it. The token is never serialized.
type Client struct {
	Name  string `json:"name"`
	Token string `json:"-"`
}

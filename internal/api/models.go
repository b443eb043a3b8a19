package api

type registerRequest struct {
	Name string `json:"name"`
}

type registerResponse struct {
	Token string `json:"token"`
}

type sendRequest struct {
	Token string `json:"token"`
	To    string `json:"to"`
	Body  string `json:"body"`
}

type statusResponse struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

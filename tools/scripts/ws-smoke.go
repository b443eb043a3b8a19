// Package main provides a CI-friendly smoke test for the relay server.
//
// It validates:
//   - /register token issuance + duplicate-name rejection
//   - WebSocket handshake on /messages/<token>
//   - /send_message -> frame delivery with the sender's display name
//   - /status and /clients presence snapshots
//   - recipient_offline rejection for an unconnected peer
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type messageFrame struct {
	From string `json:"from"`
	Body string `json:"body"`
}

func main() {
	var (
		baseURL = flag.String("base", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		text    = flag.String("text", "hello relay", "Message body to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	suffix := time.Now().UnixNano() % 100000

	aliceName := fmt.Sprintf("alice-%d", suffix)
	bobName := fmt.Sprintf("bob-%d", suffix)

	aliceToken := mustRegister(root, *baseURL, aliceName, *timeout)
	bobToken := mustRegister(root, *baseURL, bobName, *timeout)

	if *verbose {
		fmt.Printf("registered: %s %s\n", aliceName, bobName)
	}

	mustRegisterDuplicateRejected(root, *baseURL, strings.ToUpper(aliceName), *timeout)

	bobWS := mustDial(root, *baseURL, bobToken, *origin, *timeout)
	defer closeWS(bobWS)

	mustStatusConnected(root, *baseURL, bobToken, bobName, true, *timeout)
	mustStatusConnected(root, *baseURL, aliceToken, aliceName, false, *timeout)
	mustClientsContain(root, *baseURL, []string{aliceName, bobName}, *timeout)

	mustSendOK(root, *baseURL, aliceToken, bobName, *text, *timeout)

	frame := mustReadFrame(root, bobWS, *timeout)
	if frame.From != aliceName {
		fatalf("frame from=%q want=%q", frame.From, aliceName)
	}
	if frame.Body != *text {
		fatalf("frame body=%q want=%q", frame.Body, *text)
	}

	// Alice reserved a name but never connected, so she cannot receive.
	mustSendRejected(root, *baseURL, bobToken, aliceName, "ping", http.StatusNotFound, "recipient_offline", *timeout)

	fmt.Printf("OK: %s -> %s body=%q\n", aliceName, bobName, *text)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func postJSON(parent context.Context, rawURL string, payload any, stepTimeout time.Duration) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func getJSON(parent context.Context, rawURL string, out any, stepTimeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		return resp, err
	}
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, out); err != nil {
			return resp, fmt.Errorf("unmarshal %s: %w", rawURL, err)
		}
	}
	return resp, nil
}

func mustRegister(parent context.Context, baseURL, name string, stepTimeout time.Duration) string {
	resp, body, err := postJSON(parent, baseURL+"/register", map[string]string{"name": name}, stepTimeout)
	if err != nil {
		fatalf("register %s: %v", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		fatalf("register %s: status=%d body=%s", name, resp.StatusCode, body)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		fatalf("register %s: unmarshal: %v", name, err)
	}
	if strings.TrimSpace(out.Token) == "" {
		fatalf("register %s: missing token", name)
	}
	return out.Token
}

func mustRegisterDuplicateRejected(parent context.Context, baseURL, name string, stepTimeout time.Duration) {
	resp, body, err := postJSON(parent, baseURL+"/register", map[string]string{"name": name}, stepTimeout)
	if err != nil {
		fatalf("duplicate register %s: %v", name, err)
	}
	if resp.StatusCode != http.StatusNotAcceptable {
		fatalf("duplicate register %s: status=%d want=406 body=%s", name, resp.StatusCode, body)
	}
}

func mustDial(parent context.Context, baseURL, token, origin string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/messages/" + token

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("dial: %v", err)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustReadFrame(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) messageFrame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	mt, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("read frame: %v", err)
	}
	if mt != websocket.MessageText {
		fatalf("unexpected message type: %v", mt)
	}
	var frame messageFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		fatalf("unmarshal frame %q: %v", data, err)
	}
	return frame
}

func mustSendOK(parent context.Context, baseURL, token, to, body string, stepTimeout time.Duration) {
	resp, respBody, err := postJSON(parent, baseURL+"/send_message",
		map[string]string{"token": token, "to": to, "body": body}, stepTimeout)
	if err != nil {
		fatalf("send to %s: %v", to, err)
	}
	if resp.StatusCode != http.StatusOK {
		fatalf("send to %s: status=%d body=%s", to, resp.StatusCode, respBody)
	}
	if len(bytes.TrimSpace(respBody)) != 0 {
		fatalf("send ack must be empty, got %q", respBody)
	}
}

func mustSendRejected(parent context.Context, baseURL, token, to, body string, wantStatus int, wantCode string, stepTimeout time.Duration) {
	resp, respBody, err := postJSON(parent, baseURL+"/send_message",
		map[string]string{"token": token, "to": to, "body": body}, stepTimeout)
	if err != nil {
		fatalf("send to %s: %v", to, err)
	}
	if resp.StatusCode != wantStatus {
		fatalf("send to %s: status=%d want=%d body=%s", to, resp.StatusCode, wantStatus, respBody)
	}
	if !bytes.Contains(respBody, []byte(wantCode)) {
		fatalf("send to %s: body=%s missing code=%s", to, respBody, wantCode)
	}
}

func mustStatusConnected(parent context.Context, baseURL, token, wantName string, wantConnected bool, stepTimeout time.Duration) {
	var st struct {
		Name      string `json:"name"`
		Connected bool   `json:"connected"`
	}
	resp, err := getJSON(parent, baseURL+"/status/"+token, &st, stepTimeout)
	if err != nil {
		fatalf("status %s: %v", wantName, err)
	}
	if resp.StatusCode != http.StatusOK {
		fatalf("status %s: status=%d", wantName, resp.StatusCode)
	}
	if st.Name != wantName || st.Connected != wantConnected {
		fatalf("status %s: got=%+v want connected=%v", wantName, st, wantConnected)
	}
}

func mustClientsContain(parent context.Context, baseURL string, wantNames []string, stepTimeout time.Duration) {
	var list []struct {
		Name string `json:"name"`
	}
	resp, err := getJSON(parent, baseURL+"/clients", &list, stepTimeout)
	if err != nil {
		fatalf("clients: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		fatalf("clients: status=%d", resp.StatusCode)
	}
	present := make(map[string]bool, len(list))
	for _, c := range list {
		present[c.Name] = true
	}
	for _, n := range wantNames {
		if !present[n] {
			fatalf("clients: missing %q in %+v", n, list)
		}
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type loginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID, role string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID, "role": role})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", err
	}
	return lr.Token, nil
}

// inFrame mirrors the frames the gateway sends.
type inFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Message *struct {
		ID       int64  `json:"id"`
		SenderID string `json:"sender_id"`
		Content  string `json:"content"`
	} `json:"message"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	IsTyping  bool   `json:"is_typing"`
	MessageID int64  `json:"message_id"`
	Reaction  string `json:"reaction"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
}

func printFrame(raw []byte) {
	var f inFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		fmt.Printf("\rraw: %s\n> ", raw)
		return
	}
	switch f.Type {
	case "message":
		fmt.Printf("\r[%d] %s: %s\n> ", f.Message.ID, f.Message.SenderID, f.Message.Content)
	case "typing":
		if f.IsTyping {
			fmt.Printf("\r%s is typing...\n> ", f.UserID)
		}
	case "read":
		fmt.Printf("\r%s read message %d\n> ", f.UserID, f.MessageID)
	case "reaction":
		fmt.Printf("\r%s reacted %s to message %d\n> ", f.UserID, f.Reaction, f.MessageID)
	case "presence":
		fmt.Printf("\r%s is now %s\n> ", f.UserID, f.Status)
	case "connection_established":
		fmt.Printf("\rconnected to room %s\n> ", f.RoomID)
	case "error":
		fmt.Printf("\rerror (%s): %s\n> ", f.Kind, f.Detail)
	default:
		fmt.Printf("\r%s\n> ", raw)
	}
}

func main() {
	gatewayAddr := flag.String("gateway", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	role := flag.String("role", "patient", "role (patient|therapist|moderator|admin)")
	roomID := flag.String("room", "", "room id")
	kind := flag.String("kind", "one_to_one", "room kind (one_to_one|group)")
	since := flag.Int64("since", 0, "replay history after this event id")
	flag.Parse()

	if *roomID == "" {
		log.Fatal("a -room id is required; create one via the gateway /rooms endpoint")
	}

	log.Printf("logging in as %s (%s)...", *userID, *role)
	token, err := login(*apiAddr, *userID, *role)
	if err != nil {
		log.Fatal("login failed: ", err)
	}

	family := "one-to-one"
	if *kind == "group" {
		family = "group"
	}
	u := url.URL{Scheme: "ws", Host: *gatewayAddr, Path: "/ws/" + family + "/" + *roomID}
	if *since > 0 {
		q := u.Query()
		q.Set("since", strconv.FormatInt(*since, 10))
		u.RawQuery = q.Encode()
	}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial: ", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			printFrame(raw)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	send := func(frame any) bool {
		raw, _ := json.Marshal(frame)
		if err := c.WriteMessage(websocket.TextMessage, raw); err != nil {
			log.Println("write:", err)
			return false
		}
		return true
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			switch {
			case text == "":
			case text == "/quit":
				close(interrupt)
				return
			case text == "/typing":
				send(map[string]any{"type": "typing", "is_typing": true})
			case strings.HasPrefix(text, "/read "):
				id, err := strconv.ParseInt(strings.TrimPrefix(text, "/read "), 10, 64)
				if err != nil {
					fmt.Println("usage: /read <message-id>")
					break
				}
				send(map[string]any{"type": "read", "message_id": id})
			case strings.HasPrefix(text, "/react "):
				parts := strings.SplitN(strings.TrimPrefix(text, "/react "), " ", 2)
				if len(parts) != 2 {
					fmt.Println("usage: /react <message-id> <reaction>")
					break
				}
				id, err := strconv.ParseInt(parts[0], 10, 64)
				if err != nil {
					fmt.Println("usage: /react <message-id> <reaction>")
					break
				}
				send(map[string]any{"type": "reaction", "message_id": id, "reaction": parts[1], "action": "add"})
			default:
				send(map[string]any{"type": "message", "content": text})
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

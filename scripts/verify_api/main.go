package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
)

type loginResponse struct {
	Token string `json:"token"`
}

func main() {
	apiAddr := os.Getenv("API_ADDR")
	if apiAddr == "" {
		apiAddr = "http://localhost:8081"
	}
	roomID := os.Getenv("ROOM_ID")
	if roomID == "" {
		roomID = "smoke-test-room"
	}

	// 1. Login
	reqBody, _ := json.Marshal(map[string]string{"user_id": "smoke_test_user", "role": "patient"})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("token: %s...\n", lr.Token[:10])

	get := func(path string) {
		req, _ := http.NewRequest(http.MethodGet, apiAddr+path, nil)
		req.Header.Add("Authorization", "Bearer "+lr.Token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		log.Printf("GET %s -> %d %s", path, resp.StatusCode, body)
	}

	// 2. History and presence for the room
	get("/history?room_id=" + roomID)
	get("/rooms/" + roomID + "/presence")
}

// Command localcall exercises a running server without the telephony
// provider: it submits an enquiry, waits for the call to be scheduled,
// then connects to the stream endpoint pretending to be the provider
// bridge, streaming caller audio up and reporting agent audio down.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// 20ms of 8kHz mu-law per frame, matching the provider bridge.
const frameBytes = 160

func main() {
	server := flag.String("server", "http://localhost:8001", "server base URL")
	name := flag.String("name", "Asha Rao", "caller name")
	phone := flag.String("phone", "+911234567890", "caller phone")
	audioPath := flag.String("audio", "", "raw 8kHz mu-law file to stream as caller audio")
	duration := flag.Duration("duration", 30*time.Second, "silence duration when no audio file is given")
	flag.Parse()

	enquiryID, err := submitEnquiry(*server, *name, *phone)
	if err != nil {
		log.Fatalf("submit enquiry: %v", err)
	}
	fmt.Printf("Enquiry submitted: %s\n", enquiryID)

	conn, err := dialStream(*server)
	if err != nil {
		log.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	handshake, _ := json.Marshal(map[string]string{
		"event":      "connected",
		"session_id": enquiryID,
	})
	if err := conn.WriteMessage(websocket.TextMessage, handshake); err != nil {
		log.Fatalf("handshake: %v", err)
	}
	fmt.Println("Stream connected, agent should greet shortly")

	go printAgentFrames(conn)

	caller := callerAudio(*audioPath, *duration)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	offset := 0
	for {
		select {
		case <-interrupt:
			fmt.Println("\nSending stop event")
			stop, _ := json.Marshal(map[string]string{"event": "stop"})
			conn.WriteMessage(websocket.TextMessage, stop)
			time.Sleep(200 * time.Millisecond)
			return
		case <-ticker.C:
			if offset >= len(caller) {
				fmt.Println("Caller audio exhausted, sending stop event")
				stop, _ := json.Marshal(map[string]string{"event": "stop"})
				conn.WriteMessage(websocket.TextMessage, stop)
				time.Sleep(200 * time.Millisecond)
				return
			}
			end := offset + frameBytes
			if end > len(caller) {
				end = len(caller)
			}
			frame, _ := json.Marshal(map[string]interface{}{
				"event": "media",
				"media": map[string]string{
					"payload": base64.StdEncoding.EncodeToString(caller[offset:end]),
				},
			})
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Fatalf("stream write: %v", err)
			}
			offset = end
		}
	}
}

func submitEnquiry(server, name, phone string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"name":    name,
		"phone":   phone,
		"email":   "local@test",
		"message": "local test call",
	})
	resp, err := http.Post(server+"/submit-enquiry", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		EnquiryID string `json:"enquiry_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.EnquiryID, nil
}

func dialStream(server string) (*websocket.Conn, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	endpoint := fmt.Sprintf("%s://%s/exotel_stream", scheme, u.Host)
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	return conn, err
}

func printAgentFrames(conn *websocket.Conn) {
	var agentBytes int
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("Stream closed (%v), agent sent %d audio bytes total\n", err, agentBytes)
			return
		}
		var frame struct {
			Event string `json:"event"`
			Media struct {
				Payload string `json:"payload"`
			} `json:"media"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		switch frame.Event {
		case "media":
			chunk, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
			if err == nil {
				agentBytes += len(chunk)
				fmt.Printf("\ragent audio: %d bytes%s", agentBytes, strings.Repeat(" ", 10))
			}
		case "clear":
			fmt.Println("\nagent cleared playback (barge-in)")
		}
	}
}

// callerAudio loads the caller-side audio, or mu-law silence when no
// file is given.
func callerAudio(path string, silence time.Duration) []byte {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read audio file: %v", err)
		}
		return data
	}
	n := int(silence.Seconds() * 8000)
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xFF // mu-law silence
	}
	return out
}

package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeAuth     = 2
	MsgTypeJoinGame = 101
	MsgTypeMove     = 201
	MsgTypeAbandon  = 202
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	userID := flag.Int64("user", 1, "user id to authenticate as")
	mode := flag.String("mode", "free", "game mode: practice, free or staked")
	stake := flag.Int64("stake", 0, "stake for staked games")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// track the live game for move submissions
	var gameID string
	var seq int64

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			log.Printf("<- RECV (ID: %d): %s", msgID, string(data))

			var state struct {
				GameID string `json:"game_id"`
				Board  string `json:"board"`
				Seq    int64  `json:"seq"`
				Turn   string `json:"turn"`
			}
			if json.Unmarshal(data, &state) == nil && state.GameID != "" {
				gameID = state.GameID
				seq = state.Seq
				if state.Board != "" {
					printBoard(state.Board, state.Turn)
				}
			}
		}
	}()

	authData, _ := json.Marshal(map[string]interface{}{"user_id": *userID})
	if err := send(c, MsgTypeAuth, authData); err != nil {
		log.Fatalf("Auth failed: %v", err)
	}

	joinData, _ := json.Marshal(map[string]interface{}{"mode": *mode, "stake": *stake})
	if err := send(c, MsgTypeJoinGame, joinData); err != nil {
		log.Fatalf("Join failed: %v", err)
	}

	log.Println("Client started. Enter a cell number 1-15 to move, 'quit' to abandon.")

	// Write loop
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			text = strings.TrimSpace(text)

			if text == "quit" {
				send(c, MsgTypeAbandon, []byte("{}"))
				continue
			}

			pos, err := strconv.Atoi(text)
			if err != nil || pos < 1 || pos > 15 {
				continue
			}

			moveData, _ := json.Marshal(map[string]interface{}{
				"game_id":  gameID,
				"position": pos,
				"seq":      seq,
			})
			if err := send(c, MsgTypeMove, moveData); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT: move at %d", pos)
		}
	}
}

func printBoard(board, turn string) {
	if len(board) != 15 {
		return
	}
	log.Printf("turn: %s", turn)
	for row := 0; row < 3; row++ {
		log.Printf("  %s", strings.Join(strings.Split(board[row*5:row*5+5], ""), " "))
	}
}

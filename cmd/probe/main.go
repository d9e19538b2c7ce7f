// Probe is a terminal client for poking a running relay: it mints a token,
// connects as a given user, prints everything the server pushes, and can
// fire a test message at another user.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"

	"telecare/auth"
	"telecare/domain"
	"telecare/domain/event"
	"telecare/server"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	secret := flag.String("secret", "", "JWT secret shared with the server")
	userID := flag.String("user", "probe-1", "user id to connect as")
	role := flag.String("role", "doctor", "doctor or patient")
	name := flag.String("name", "Probe", "display name")
	to := flag.String("to", "", "send a test message to this user id")
	text := flag.String("text", "ping from probe", "test message content")
	flag.Parse()

	if *secret == "" {
		log.Fatal("missing -secret")
	}
	parsedRole, err := domain.ParseRole(*role)
	if err != nil {
		log.Fatalf("invalid role %q", *role)
	}

	tokens := auth.NewTokens(*secret, time.Hour)
	token, err := tokens.Generate(domain.Identity{
		UserID:      *userID,
		Role:        parsedRole,
		DisplayName: *name,
	})
	if err != nil {
		log.Fatal("token generation failed: ", err)
	}

	wsURL := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "token=" + token}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		log.Fatal("dial failed: ", err)
	}
	defer conn.Close()
	color.Greenln("connected as", *userID)

	if *to != "" {
		payload, _ := json.Marshal(map[string]string{
			"recipient_id": *to,
			"content":      *text,
		})
		env := server.Envelope{Type: server.TypeSendMessage, Data: payload, Timestamp: time.Now().UnixMilli()}
		if err := conn.WriteJSON(env); err != nil {
			log.Fatal("send failed: ", err)
		}
		color.Yellowln("sent test message to", *to)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	events := make(chan server.Envelope)
	go func() {
		defer close(events)
		for {
			var env server.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			events <- env
		}
	}()

	for {
		select {
		case env, ok := <-events:
			if !ok {
				color.Redln("connection closed")
				return
			}
			render(env)
		case <-interrupt:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func render(env server.Envelope) {
	switch env.Type {
	case "online-users":
		var users event.OnlineUsers
		if err := json.Unmarshal(env.Data, &users); err != nil {
			break
		}
		renderPresence(users.Users)
		return
	case "error":
		color.Redln(env.Type, string(env.Data))
		return
	case "new-message", "message-sent":
		color.Cyanln(env.Type, string(env.Data))
		return
	}
	color.Grayln(env.Type, string(env.Data))
}

func renderPresence(users []domain.PresenceEntry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User", "Role", "Name", "Last Seen"})
	table.SetBorder(false)
	for _, u := range users {
		table.Append([]string{u.UserID, string(u.Role), u.DisplayName, u.LastSeen.Format("15:04:05")})
	}
	table.Render()
	fmt.Println()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"IVA-Bank/sdk/go/iva"
)

// main 演示 SDK 的登录与对话流程，服务端以 httptest 模拟。
func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(iva.Token{
			AccessToken: "demo-token",
			TokenType:   "bearer",
			User:        iva.User{Name: "Ada Lovelace", Email: "ada@example.com"},
		})
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer demo-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Could not validate credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(iva.ChatReply{
			Response: "Your Checking account ADA-CHK has a balance of $10000.00.",
			Route:    "banking",
		})
	})
	mux.HandleFunc("/chat/guest", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(iva.ChatReply{
			Response: "Happy to help you open an account. What is your email address?",
			Route:    "onboarding",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := iva.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}
	ctx := context.Background()

	guest, err := client.GuestChat(ctx, "I'd like to open an account")
	if err != nil {
		panic(err)
	}
	fmt.Printf("[%s] %s\n", guest.Route, guest.Response)

	token, err := client.Login(ctx, "ada@example.com", "secret")
	if err != nil {
		panic(err)
	}
	fmt.Printf("signed in as %s\n", token.User.Name)

	reply, err := client.Chat(ctx, "What is my balance?")
	if err != nil {
		panic(err)
	}
	fmt.Printf("[%s] %s\n", reply.Route, reply.Response)
}

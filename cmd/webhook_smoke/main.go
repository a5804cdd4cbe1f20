package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"questkeeper_notifications/internal/logger"
)

// Posts sample task and profile webhooks to a running instance and prints
// each response. Useful after a deploy or when wiring database triggers.
func main() {
	base := flag.String("url", "http://localhost:"+portOr("8080"), "service base url")
	taskID := flag.Int64("task", time.Now().Unix()%1_000_000, "task id to use")
	userID := flag.String("user", "smoke-user", "owner user id")
	token := flag.String("token", "", "device registration token; skips the profile step when empty")
	dueIn := flag.Duration("due", 100*time.Hour, "due date offset from now")
	cleanup := flag.Bool("cleanup", true, "send DELETE webhooks afterwards")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	client := &http.Client{Timeout: 15 * time.Second}

	task := map[string]any{
		"id":          *taskID,
		"user_id":     *userID,
		"title":       "Smoke test quest",
		"description": "Created by webhook_smoke",
		"due_date":    time.Now().Add(*dueIn).UTC().Format(time.RFC3339),
		"starred":     true,
		"completed":   false,
	}

	post(client, *base+"/webhooks/tasks", webhook("INSERT", "tasks", task, nil))
	get(client, *base+"/notifications/tasks/"+strconv.FormatInt(*taskID, 10))

	profile := map[string]any{"id": *taskID, "user_id": *userID, "token": *token}
	if *token != "" {
		post(client, *base+"/webhooks/profiles", webhook("INSERT", "profiles", profile, nil))
	}

	if !*cleanup {
		return
	}
	post(client, *base+"/webhooks/tasks", webhook("DELETE", "tasks", nil, task))
	if *token != "" {
		post(client, *base+"/webhooks/profiles", webhook("DELETE", "profiles", nil, profile))
	}
}

func webhook(typ, table string, record, old map[string]any) map[string]any {
	return map[string]any{
		"type":       typ,
		"table":      table,
		"schema":     "public",
		"record":     record,
		"old_record": old,
	}
}

func post(client *http.Client, url string, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		logger.Fatal("encode body", "error", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		logger.Fatal("request failed", "url", url, "error", err)
	}
	report("POST", url, resp)
}

func get(client *http.Client, url string) {
	resp, err := client.Get(url)
	if err != nil {
		logger.Fatal("request failed", "url", url, "error", err)
	}
	report("GET", url, resp)
}

func report(method, url string, resp *http.Response) {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s %s -> %d\n%s\n\n", method, url, resp.StatusCode, b)
}

func portOr(def string) string {
	if p := os.Getenv("APP_PORT"); p != "" {
		return p
	}
	return def
}
